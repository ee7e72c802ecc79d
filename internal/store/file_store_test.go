package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenReturnsBytesAndContentType(t *testing.T) {
	dir := t.TempDir()
	content := []byte("%PDF-1.7 fake document body")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc-1.pdf"), content, 0600))

	s := NewFS(dir)
	rc, info, err := s.Open(context.Background(), "doc-1.pdf")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.Equal(t, "application/pdf", info.ContentType)
	require.Equal(t, int64(len(content)), info.Size)
}

func TestOpenMissingFile(t *testing.T) {
	s := NewFS(t.TempDir())
	_, _, err := s.Open(context.Background(), "nope.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc-1.pdf"), []byte("x"), 0600))

	s := NewFS(dir)
	for _, id := range []string{"", "../doc-1.pdf", "sub/doc-1.pdf", `..\doc-1.pdf`} {
		_, _, err := s.Open(context.Background(), id)
		require.ErrorIs(t, err, ErrNotFound, "id=%q", id)
	}
}

func TestOpenUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("x"), 0600))

	s := NewFS(dir)
	rc, info, err := s.Open(context.Background(), "blob.bin")
	require.NoError(t, err)
	rc.Close()
	require.Equal(t, "application/octet-stream", info.ContentType)
}
