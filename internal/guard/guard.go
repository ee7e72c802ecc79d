// Package guard detects and reports a fixed catalogue of exfiltration-adjacent
// actions while a viewing session is active. It cannot and does not claim to
// stop OS-level screen capture; it raises the cost of casual exfiltration and
// leaves an auditable trail.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/audit"
)

// ViolationType identifies one catalogued interceptable action.
type ViolationType string

const (
	ViolationRightClick       ViolationType = "right_click"
	ViolationKeyboardShortcut ViolationType = "keyboard_shortcut"
	ViolationPrintScreen      ViolationType = "print_screen"
	ViolationDevTools         ViolationType = "dev_tools"
)

// Catalogue lists every action the guard watches while armed.
var Catalogue = []ViolationType{
	ViolationRightClick,
	ViolationKeyboardShortcut,
	ViolationPrintScreen,
	ViolationDevTools,
}

// Known reports whether t is part of the catalogue.
func Known(t ViolationType) bool {
	for _, v := range Catalogue {
		if v == t {
			return true
		}
	}
	return false
}

// Violation is one caught action during an armed span.
type Violation struct {
	Type     ViolationType
	ViewerID string
	FileID   string
	At       time.Time
}

// Interceptor installs and removes the process-wide input interception.
// Install must suppress the default action for every catalogued event and
// call intercept once per caught action; Uninstall must restore the exact
// pre-install input state.
type Interceptor interface {
	Install(intercept func(ViolationType)) error
	Uninstall() error
}

// Notifier surfaces an immediate, blocking notice to the viewer. Silent
// interception defeats the deterrence purpose: the viewer must know they
// were caught.
type Notifier interface {
	Notify(t ViolationType)
}

// State is the guard's interception lifecycle state.
type State int

const (
	StateInactive State = iota
	StateArmed
)

// ErrAlreadyArmed is returned when another guard holds the process-wide
// interception. Interception affects the whole page, so at most one guard
// may be armed; installing twice is never acceptable.
var ErrAlreadyArmed = errors.New("another guard is already armed")

var (
	armedMu sync.Mutex
	active  *Guard
)

// Guard owns one Inactive -> Armed -> Inactive interception span per viewing
// session.
type Guard struct {
	mu          sync.Mutex
	state       State
	viewerID    string
	fileID      string
	violations  int
	interceptor Interceptor
	notifier    Notifier
	sink        audit.Sink
	logger      *zap.Logger
	now         func() time.Time
	onViolation func(Violation)
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates an inactive guard.
func New(interceptor Interceptor, notifier Notifier, sink audit.Sink, logger *zap.Logger, opts ...Option) *Guard {
	g := &Guard{
		interceptor: interceptor,
		notifier:    notifier,
		sink:        sink,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetViolationHook registers a callback invoked once per caught violation.
// The session controller uses it to keep the session's violation count in
// step with the guard's.
func (g *Guard) SetViolationHook(fn func(Violation)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onViolation = fn
}

// Arm installs the interception for (viewerID, fileID). Arming an already
// armed guard again is a no-op reusing the existing span; arming while a
// different guard is armed fails without touching the input state.
func (g *Guard) Arm(viewerID, fileID string) error {
	armedMu.Lock()
	if active != nil && active != g {
		armedMu.Unlock()
		return ErrAlreadyArmed
	}
	if active == g {
		armedMu.Unlock()
		return nil
	}
	active = g
	armedMu.Unlock()

	g.mu.Lock()
	g.viewerID = viewerID
	g.fileID = fileID
	g.violations = 0
	g.mu.Unlock()

	if err := g.interceptor.Install(g.intercept); err != nil {
		armedMu.Lock()
		active = nil
		armedMu.Unlock()
		return err
	}

	g.mu.Lock()
	g.state = StateArmed
	g.mu.Unlock()
	g.logger.Info("guard armed",
		zap.String("viewer_id", viewerID),
		zap.String("file_id", fileID),
	)
	return nil
}

// Disarm removes the interception and releases the process-wide slot. It is
// idempotent: every exit path of the session controller calls it, and a
// second call must not double-uninstall.
func (g *Guard) Disarm() error {
	g.mu.Lock()
	if g.state != StateArmed {
		g.mu.Unlock()
		return nil
	}
	g.state = StateInactive
	viewerID := g.viewerID
	g.mu.Unlock()

	err := g.interceptor.Uninstall()

	armedMu.Lock()
	if active == g {
		active = nil
	}
	armedMu.Unlock()

	g.logger.Info("guard disarmed", zap.String("viewer_id", viewerID))
	return err
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ViolationCount returns the monotonically increasing count for the current
// armed span.
func (g *Guard) ViolationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.violations
}

// intercept handles one caught action: count it, report it, tell the viewer.
// Events arriving after disarm are dropped.
func (g *Guard) intercept(t ViolationType) {
	g.mu.Lock()
	if g.state != StateArmed {
		g.mu.Unlock()
		return
	}
	g.violations++
	v := Violation{Type: t, ViewerID: g.viewerID, FileID: g.fileID, At: g.now()}
	hook := g.onViolation
	g.mu.Unlock()

	ev := audit.NewEvent(audit.KindViolation, v.ViewerID, v.FileID, audit.OutcomeRecorded)
	ev.ViolationType = string(t)
	ev.Timestamp = v.At.UTC()
	if err := g.sink.Record(context.Background(), ev); err != nil {
		g.logger.Error("record violation", zap.Error(err))
	}

	g.notifier.Notify(t)
	if hook != nil {
		hook(v)
	}
}
