package viewer

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/audit"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/guard"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/render"
)

const waitFor = 2 * time.Second

type fetchResult struct {
	data []byte
	err  error
}

type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	idx     int
	gate    chan struct{}
}

func (f *fakeFetcher) FetchDocument(_ context.Context, _ string) ([]byte, string, error) {
	f.mu.Lock()
	gate := f.gate
	r := f.results[f.idx]
	if f.idx < len(f.results)-1 {
		f.idx++
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return r.data, "application/pdf", r.err
}

type fakeRenderer struct {
	mu       sync.Mutex
	pages    int
	openErr  error
	gate     chan struct{}
	rendered []int
}

func (r *fakeRenderer) Open(data []byte) (*render.Handle, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &render.Handle{TotalPages: r.pages}, nil
}

// RenderPage encodes the page number in the surface width so tests can tell
// which page was painted.
func (r *fakeRenderer) RenderPage(_ *render.Handle, page int, zoom float64) *image.RGBA {
	r.mu.Lock()
	r.rendered = append(r.rendered, page)
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s := image.NewRGBA(image.Rect(0, 0, 100*page, 100))
	draw.Draw(s, s.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return s
}

func (r *fakeRenderer) setGate(gate chan struct{}) {
	r.mu.Lock()
	r.gate = gate
	r.mu.Unlock()
}

type nopInterceptor struct {
	mu         sync.Mutex
	cb         func(guard.ViolationType)
	uninstalls int
}

func (i *nopInterceptor) Install(cb func(guard.ViolationType)) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cb = cb
	return nil
}

func (i *nopInterceptor) Uninstall() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.uninstalls++
	i.cb = nil
	return nil
}

func (i *nopInterceptor) trigger(t guard.ViolationType) {
	i.mu.Lock()
	cb := i.cb
	i.mu.Unlock()
	if cb != nil {
		cb(t)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(guard.ViolationType) {}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctrl        *Controller
	fetcher     *fakeFetcher
	renderer    *fakeRenderer
	interceptor *nopInterceptor
	paints      chan *image.RGBA
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:     &fakeFetcher{results: []fetchResult{{data: []byte("%PDF")}}},
		renderer:    &fakeRenderer{pages: 5},
		interceptor: &nopInterceptor{},
		paints:      make(chan *image.RGBA, 16),
	}
	g := guard.New(f.interceptor, nopNotifier{}, audit.NewMemorySink(), zap.NewNop())
	opts = append(opts, WithPaintHook(func(s *image.RGBA) { f.paints <- s }))
	f.ctrl = NewController(f.fetcher, f.renderer, g,
		"viewer-1", "doc-1.pdf", "jdoe@example.edu", zap.NewNop(), opts...)
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *fixture) waitPaint(t *testing.T) *image.RGBA {
	t.Helper()
	select {
	case s := <-f.paints:
		return s
	case <-time.After(waitFor):
		t.Fatal("no surface painted")
		return nil
	}
}

func (f *fixture) waitReady(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return f.ctrl.State() == StateReady },
		waitFor, 5*time.Millisecond)
}

func paintedPage(s *image.RGBA) int { return s.Bounds().Dx() / 100 }

func TestOpenPublishesWatermarkedFirstPage(t *testing.T) {
	f := newFixture(t, WithDefaultZoom(1.5))

	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))
	require.Equal(t, StateReady, f.ctrl.State())

	sess := f.ctrl.Snapshot()
	require.Equal(t, 1, sess.CurrentPage)
	require.Equal(t, 5, sess.TotalPages)
	require.Equal(t, 1.5, sess.ZoomFactor)
	require.Equal(t, 0, sess.ViolationCount)

	s := f.waitPaint(t)
	require.Equal(t, 1, paintedPage(s))
	require.Positive(t, nonWhitePixels(s), "published surface must carry the watermark")
}

func TestViolationCountTracksGuard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))

	f.interceptor.trigger(guard.ViolationPrintScreen)
	f.interceptor.trigger(guard.ViolationRightClick)
	require.Equal(t, 2, f.ctrl.Snapshot().ViolationCount)
}

func TestCloseReleasesGuard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))

	f.ctrl.Close()
	require.Equal(t, StateClosed, f.ctrl.State())
	require.Equal(t, 1, f.interceptor.uninstalls)
	require.Nil(t, f.ctrl.Surface())

	// Terminal and idempotent.
	f.ctrl.Close()
	require.Equal(t, 1, f.interceptor.uninstalls)
	require.ErrorIs(t, f.ctrl.GoToPage(2), ErrClosed)
}

func TestRapidNavigationCoalesces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))
	require.Equal(t, 1, paintedPage(f.waitPaint(t)))

	gate := make(chan struct{})
	f.renderer.setGate(gate)

	require.NoError(t, f.ctrl.GoToPage(2))
	require.NoError(t, f.ctrl.GoToPage(3))
	close(gate)

	s := f.waitPaint(t)
	require.Equal(t, 3, paintedPage(s), "only the latest request may be painted")
	f.waitReady(t)
	require.Equal(t, 3, f.ctrl.Snapshot().CurrentPage)

	select {
	case extra := <-f.paints:
		t.Fatalf("superseded page %d was painted", paintedPage(extra))
	default:
	}
}

func TestCloseDiscardsInFlightLoad(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.fetcher.gate = gate

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Open(context.Background(), "tok") }()

	require.Eventually(t, func() bool { return f.ctrl.State() == StateLoading },
		waitFor, 5*time.Millisecond)
	f.ctrl.Close()
	close(gate)

	require.ErrorIs(t, <-done, ErrClosed)
	require.Len(t, f.paints, 0, "a closed session must never paint")
	require.Equal(t, 1, f.interceptor.uninstalls)
}

func TestFailedSessionSupportsManualRetry(t *testing.T) {
	f := newFixture(t)
	f.fetcher.results = []fetchResult{
		{err: &TransportError{err: context.DeadlineExceeded}},
		{data: []byte("%PDF")},
	}

	err := f.ctrl.Open(context.Background(), "tok")
	require.Error(t, err)
	require.Equal(t, StateFailed, f.ctrl.State())
	lastErr, retryable := f.ctrl.LastError()
	require.Error(t, lastErr)
	require.True(t, retryable)

	require.NoError(t, f.ctrl.Retry(context.Background()))
	require.Equal(t, StateReady, f.ctrl.State())
}

func TestAccessDeniedIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	f.fetcher.results = []fetchResult{{err: ErrAccessDenied}}

	require.ErrorIs(t, f.ctrl.Open(context.Background(), "tok"), ErrAccessDenied)
	_, retryable := f.ctrl.LastError()
	require.False(t, retryable)
}

func TestCorruptDocumentIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	f.renderer.openErr = render.ErrCorruptDocument

	require.ErrorIs(t, f.ctrl.Open(context.Background(), "tok"), render.ErrCorruptDocument)
	require.Equal(t, StateFailed, f.ctrl.State())
	_, retryable := f.ctrl.LastError()
	require.False(t, retryable, "retrying the same corrupt bytes cannot help")
}

func TestZoomIsClamped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))

	require.NoError(t, f.ctrl.SetZoom(10))
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().ZoomFactor == render.MaxZoom },
		waitFor, 5*time.Millisecond)

	f.waitReady(t)
	require.NoError(t, f.ctrl.SetZoom(0.01))
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().ZoomFactor == render.MinZoom },
		waitFor, 5*time.Millisecond)
}

func TestPageOutOfRangeRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))

	require.ErrorIs(t, f.ctrl.GoToPage(0), ErrPageOutOfRange)
	require.ErrorIs(t, f.ctrl.GoToPage(6), ErrPageOutOfRange)
	require.Equal(t, 1, f.ctrl.Snapshot().CurrentPage, "a rejected request leaves the view untouched")
	require.Equal(t, StateReady, f.ctrl.State())
}

func TestSecondSessionRejectedWhileFirstIsOpen(t *testing.T) {
	f1 := newFixture(t)
	f2 := newFixture(t)

	require.NoError(t, f1.ctrl.Open(context.Background(), "tok-1"))
	require.ErrorIs(t, f2.ctrl.Open(context.Background(), "tok-2"), guard.ErrAlreadyArmed)
	require.Equal(t, StateIdle, f2.ctrl.State())

	f1.ctrl.Close()
	require.NoError(t, f2.ctrl.Open(context.Background(), "tok-2"))
}

func TestTimeLimitClosesSession(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, WithMaxDuration(30*time.Minute), WithClock(clock.Now))

	require.NoError(t, f.ctrl.Open(context.Background(), "tok"))
	clock.Advance(29 * time.Minute)
	require.NoError(t, f.ctrl.GoToPage(2))
	f.waitReady(t)

	clock.Advance(2 * time.Minute)
	require.ErrorIs(t, f.ctrl.GoToPage(3), ErrTimeLimitReached)
	require.Equal(t, StateClosed, f.ctrl.State())
	require.Equal(t, 1, f.interceptor.uninstalls)
}

func nonWhitePixels(s *image.RGBA) int {
	count := 0
	b := s.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := s.At(x, y).RGBA()
			if cr != 0xffff || cg != 0xffff || cb != 0xffff {
				count++
			}
		}
	}
	return count
}
