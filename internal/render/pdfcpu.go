package render

import (
	"bytes"
	"errors"
	"image"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
)

// BackendOptions are the recognized startup options for the parsing backend.
type BackendOptions struct {
	// Location points the engine at its resource/configuration directory.
	// Empty runs the engine hermetically with built-in defaults.
	Location string
	// Verbose enables per-document debug logging.
	Verbose bool
}

// PDFBackend parses PDF byte streams with pdfcpu.
type PDFBackend struct {
	conf    *model.Configuration
	verbose bool
	logger  *zap.Logger
}

// NewPDFBackend configures a pdfcpu-based parsing backend.
func NewPDFBackend(opts BackendOptions, logger *zap.Logger) *PDFBackend {
	if opts.Location == "" {
		api.DisableConfigDir()
	} else {
		model.ConfigPath = opts.Location
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFBackend{conf: conf, verbose: opts.Verbose, logger: logger}
}

// Open parses and validates the document, returning its page geometry.
func (b *PDFBackend) Open(data []byte) (Document, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), b.conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, err
	}
	if ctx.PageCount < 1 || len(dims) < ctx.PageCount {
		return nil, errors.New("document has no readable pages")
	}
	if b.verbose {
		b.logger.Debug("document parsed", zap.Int("pages", ctx.PageCount))
	}
	return &pdfDocument{pageCount: ctx.PageCount, dims: dims}, nil
}

type pdfDocument struct {
	pageCount int
	dims      []types.Dim
}

func (d *pdfDocument) PageCount() int { return d.pageCount }

func (d *pdfDocument) PageSize(page int) (float64, float64) {
	dim := d.dims[page-1]
	return dim.Width, dim.Height
}

// RenderContent returns a geometry-accurate blank page: pdfcpu parses and
// validates but does not rasterize content. A rasterizing engine plugs in
// through the same Document contract.
func (d *pdfDocument) RenderContent(_, widthPx, heightPx int) (*image.RGBA, error) {
	return blankSurface(widthPx, heightPx), nil
}
