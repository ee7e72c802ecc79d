// Package viewer drives protected viewing sessions: it owns the session
// state machine, is the only caller of the render pipeline, and guarantees
// that every published surface is watermarked and that the tamper guard is
// released on every exit path.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/guard"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/render"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/watermark"
)

// SessionState is the controller's lifecycle state.
type SessionState int

const (
	// StateIdle is the zero value before Open is called.
	StateIdle SessionState = iota
	StateLoading
	StateReady
	StateNavigating
	StateFailed
	StateClosed
)

var (
	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNotReady is returned when navigation is requested outside
	// Ready/Navigating.
	ErrNotReady = errors.New("session not ready")
	// ErrPageOutOfRange is returned for navigation targets outside
	// [1, totalPages]. The controller refuses them here so the render
	// pipeline never sees an out-of-range page.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrTimeLimitReached is returned when the configured viewing window has
	// elapsed; the session is closed as a side effect.
	ErrTimeLimitReached = errors.New("viewing time limit reached")
)

// Session is the client-only, in-memory viewing state.
type Session struct {
	CurrentPage    int
	TotalPages     int
	ZoomFactor     float64
	ViolationCount int
	StartedAt      time.Time
}

// Fetcher retrieves raw document bytes through the fetch gateway.
type Fetcher interface {
	FetchDocument(ctx context.Context, token string) (data []byte, contentType string, err error)
}

// Renderer is the render pipeline surface the controller drives.
// *render.Pipeline satisfies it.
type Renderer interface {
	Open(data []byte) (*render.Handle, error)
	RenderPage(h *render.Handle, page int, zoom float64) *image.RGBA
}

type target struct {
	page int
	zoom float64
	seq  uint64
}

// Controller owns the single source of truth for one viewing session.
type Controller struct {
	mu      sync.Mutex
	state   SessionState
	sess    Session
	handle  *render.Handle
	surface *image.RGBA
	pending target
	seq     uint64

	token     string
	lastErr   error
	retryable bool

	viewerID string
	fileID   string
	identity string

	fetcher     Fetcher
	renderer    Renderer
	guard       *guard.Guard
	logger      *zap.Logger
	now         func() time.Time
	defaultZoom float64
	maxDuration time.Duration
	onPaint     func(*image.RGBA)
}

// Option configures a Controller.
type Option func(*Controller)

// WithDefaultZoom sets the zoom used for the initial render.
func WithDefaultZoom(z float64) Option {
	return func(c *Controller) { c.defaultZoom = z }
}

// WithMaxDuration bounds how long a session may stay open; zero means
// unbounded. The limit is enforced on navigation.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) { c.maxDuration = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithPaintHook registers the publication callback. Surfaces passed to it
// are always already watermarked.
func WithPaintHook(fn func(*image.RGBA)) Option {
	return func(c *Controller) { c.onPaint = fn }
}

// NewController wires a controller for one viewer and one document. The
// identity string is what the watermark carries.
func NewController(fetcher Fetcher, renderer Renderer, g *guard.Guard, viewerID, fileID, identity string, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		fetcher:     fetcher,
		renderer:    renderer,
		guard:       g,
		viewerID:    viewerID,
		fileID:      fileID,
		identity:    identity,
		logger:      logger,
		now:         time.Now,
		defaultZoom: 1.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	g.SetViolationHook(c.noteViolation)
	return c
}

// Open arms the guard, fetches the document through the gateway, parses it
// and publishes the default-rendered first page. Errors land the session in
// Failed with a manual-retry affordance; Failed is not terminal.
//
// A second viewer opening while another guard is armed is rejected before
// any state is touched.
func (c *Controller) Open(ctx context.Context, capabilityToken string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("open: session already started")
	}
	if err := c.guard.Arm(c.viewerID, c.fileID); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateLoading
	c.token = capabilityToken
	c.sess.StartedAt = c.now()
	c.mu.Unlock()

	return c.load(ctx)
}

// Retry re-enters Loading from Failed. The retry policy is manual by design:
// silent retries could mask a tampered or missing file.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return fmt.Errorf("retry: session is not in a failed state")
	}
	c.state = StateLoading
	c.lastErr = nil
	c.mu.Unlock()

	return c.load(ctx)
}

// load runs the Loading path: fetch, parse, render page 1, stamp, publish.
// Fetch results arriving after Close are discarded, not painted.
func (c *Controller) load(ctx context.Context) error {
	data, _, err := c.fetcher.FetchDocument(ctx, c.token)
	if err != nil {
		return c.fail(err, IsRetryable(err))
	}

	handle, err := c.renderer.Open(data)
	if err != nil {
		// Corrupt or empty content: retrying the same bytes cannot help.
		return c.fail(err, false)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handle = handle
	c.sess.TotalPages = handle.TotalPages
	c.sess.CurrentPage = 1
	c.sess.ZoomFactor = clampZoom(c.defaultZoom)
	page, zoom := c.sess.CurrentPage, c.sess.ZoomFactor
	c.mu.Unlock()

	surface := c.renderer.RenderPage(handle, page, zoom)
	watermark.Stamp(surface, c.identity, c.now())

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.surface = surface
	c.state = StateReady
	paint := c.onPaint
	c.mu.Unlock()

	if paint != nil {
		paint(surface)
	}
	c.logger.Info("session ready",
		zap.String("file_id", c.fileID),
		zap.Int("total_pages", handle.TotalPages),
	)
	return nil
}

func (c *Controller) fail(err error, retryable bool) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateFailed
	c.lastErr = err
	c.retryable = retryable
	c.mu.Unlock()
	c.logger.Warn("session failed",
		zap.String("file_id", c.fileID),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	return err
}

// GoToPage requests navigation to the given page at the current zoom.
func (c *Controller) GoToPage(page int) error {
	c.mu.Lock()
	zoom := c.sess.ZoomFactor
	c.mu.Unlock()
	return c.navigate(page, zoom)
}

// SetZoom requests a re-render of the current page at the given zoom,
// clamped to the supported range.
func (c *Controller) SetZoom(zoom float64) error {
	c.mu.Lock()
	page := c.sess.CurrentPage
	c.mu.Unlock()
	return c.navigate(page, clampZoom(zoom))
}

// navigate coalesces re-entrant requests: the latest request supersedes any
// in-flight render (last-requested-wins) so intermediate pages are never
// painted after a newer request was issued. At most one render runs at a
// time.
func (c *Controller) navigate(page int, zoom float64) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateReady, StateNavigating:
	default:
		c.mu.Unlock()
		return ErrNotReady
	}
	if c.maxDuration > 0 && c.now().Sub(c.sess.StartedAt) > c.maxDuration {
		c.mu.Unlock()
		c.Close()
		return ErrTimeLimitReached
	}
	if page < 1 || page > c.sess.TotalPages {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, c.sess.TotalPages)
	}
	c.seq++
	c.pending = target{page: page, zoom: clampZoom(zoom), seq: c.seq}
	if c.state == StateNavigating {
		// Coalesced into the pending target; the running loop picks it up.
		c.mu.Unlock()
		return nil
	}
	c.state = StateNavigating
	c.mu.Unlock()

	go c.renderLoop()
	return nil
}

// renderLoop renders the latest pending target until it wins the race or the
// session closes. Completions for superseded targets are dropped without
// being painted; currentPage/zoomFactor change only when their render has
// resolved, so the displayed surface and the reported page never disagree.
func (c *Controller) renderLoop() {
	for {
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		t := c.pending
		handle := c.handle
		c.mu.Unlock()

		surface := c.renderer.RenderPage(handle, t.page, t.zoom)
		watermark.Stamp(surface, c.identity, c.now())

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		if t.seq != c.seq {
			// Superseded while rendering; discard and render the newer target.
			c.mu.Unlock()
			continue
		}
		c.sess.CurrentPage = t.page
		c.sess.ZoomFactor = t.zoom
		c.surface = surface
		c.state = StateReady
		paint := c.onPaint
		c.mu.Unlock()

		if paint != nil {
			paint(surface)
		}
		return
	}
}

// Close ends the session. It is terminal and idempotent, discards any
// in-flight render or fetch result on arrival, drops the document handle
// and always releases the guard, restoring the pre-session input state.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.handle = nil
	c.surface = nil
	c.mu.Unlock()

	if err := c.guard.Disarm(); err != nil {
		c.logger.Error("guard teardown", zap.Error(err))
	}
	c.logger.Info("session closed", zap.String("file_id", c.fileID))
}

func (c *Controller) noteViolation(v guard.Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.sess.ViolationCount++
}

// State returns the current lifecycle state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the session data.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Surface returns the last published (always watermarked) surface, or nil.
func (c *Controller) Surface() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

// LastError reports the failure that drove the session into Failed and
// whether a manual retry may help. The viewer-facing error UI is driven
// from here and nowhere below.
func (c *Controller) LastError() (err error, retryable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr, c.retryable
}

func clampZoom(z float64) float64 {
	if z < render.MinZoom {
		return render.MinZoom
	}
	if z > render.MaxZoom {
		return render.MaxZoom
	}
	return z
}
