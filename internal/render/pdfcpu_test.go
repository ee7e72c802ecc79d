package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPDFBackendRejectsGarbage(t *testing.T) {
	b := NewPDFBackend(BackendOptions{}, zap.NewNop())
	_, err := b.Open([]byte("this is not a pdf"))
	require.Error(t, err)
}

func TestPipelineMapsBackendFailureToCorrupt(t *testing.T) {
	p := NewPipeline(NewPDFBackend(BackendOptions{}, zap.NewNop()), zap.NewNop())
	_, err := p.Open([]byte("%PDF-1.7 truncated garbage"))
	require.ErrorIs(t, err, ErrCorruptDocument)
}
