package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"go.uber.org/zap"
)

var (
	// ErrEmptyDocument is returned when zero bytes were fetched.
	ErrEmptyDocument = errors.New("empty document")
	// ErrCorruptDocument is returned when the byte stream cannot be parsed.
	// Retrying the fetch will not help; the caller must not auto-retry.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Zoom bounds enforced by the session controller.
const (
	MinZoom = 0.5
	MaxZoom = 3.0
)

// pixelsPerPoint converts document points to pixels at zoom 1.0 (96 dpi).
const pixelsPerPoint = 96.0 / 72.0

// Backend is the injected document-parsing capability. The concrete engine
// is an implementation detail configured at startup, not part of this
// package's contract.
type Backend interface {
	Open(data []byte) (Document, error)
}

// Document is a parsed document held by a backend.
type Document interface {
	PageCount() int
	// PageSize reports the page's width and height in points at zoom 1.0.
	PageSize(page int) (w, h float64)
	// RenderContent paints the page's content onto a fresh surface of
	// exactly widthPx by heightPx pixels. Backends without a rasterizer
	// return a geometry-accurate blank page.
	RenderContent(page, widthPx, heightPx int) (*image.RGBA, error)
}

// Handle identifies one successfully parsed document.
type Handle struct {
	TotalPages int

	doc Document
}

// Pipeline turns a fetched byte stream into independently paintable pages.
type Pipeline struct {
	backend Backend
	logger  *zap.Logger
}

// NewPipeline creates a render pipeline around the given parsing backend.
func NewPipeline(backend Backend, logger *zap.Logger) *Pipeline {
	return &Pipeline{backend: backend, logger: logger}
}

// Open parses the byte stream and returns a handle carrying the page count.
func (p *Pipeline) Open(data []byte) (*Handle, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	doc, err := p.backend.Open(data)
	if err != nil {
		p.logger.Warn("document parse failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrCorruptDocument, err)
	}
	n := doc.PageCount()
	if n < 1 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorruptDocument)
	}
	return &Handle{TotalPages: n, doc: doc}, nil
}

// RenderPage paints the requested page to a fresh surface, delegating the
// content pixels to the backend. It is idempotent and free of side effects;
// re-rendering the same page at the same zoom is always safe. Surface pixel
// dimensions scale linearly with zoom, which is why a zoom change always
// forces a full re-render: the watermark geometry depends on the surface
// dimensions.
//
// A page outside [1, TotalPages] is a caller contract violation; the session
// controller is the only caller and never requests out-of-range pages, so
// this fails fast instead of returning an error.
func (p *Pipeline) RenderPage(h *Handle, page int, zoom float64) *image.RGBA {
	if page < 1 || page > h.TotalPages {
		panic(fmt.Sprintf("render: page %d out of range [1,%d]", page, h.TotalPages))
	}
	w, ht := h.doc.PageSize(page)
	pw := int(math.Round(w * pixelsPerPoint * zoom))
	ph := int(math.Round(ht * pixelsPerPoint * zoom))
	if pw < 1 {
		pw = 1
	}
	if ph < 1 {
		ph = 1
	}
	surface, err := h.doc.RenderContent(page, pw, ph)
	if err != nil {
		p.logger.Warn("page content render failed, painting blank page",
			zap.Int("page", page), zap.Error(err))
		return blankSurface(pw, ph)
	}
	if surface == nil || surface.Bounds().Dx() != pw || surface.Bounds().Dy() != ph {
		p.logger.Warn("backend surface dimensions disagree with page geometry",
			zap.Int("page", page))
		return blankSurface(pw, ph)
	}
	return surface
}

func blankSurface(w, h int) *image.RGBA {
	s := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(s, s.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return s
}
