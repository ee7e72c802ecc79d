package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded by the protected-document subsystem.
const (
	KindDocumentOpened = "document_opened"
	KindFetchDenied    = "fetch_denied"
	KindFetchFailed    = "fetch_failed"
	KindViolation      = "violation"
)

// Outcomes attached to fetch events.
const (
	OutcomeSuccess  = "success"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeRecorded = "recorded"
)

// Event is a single append-only entry in the security audit trail.
// Detail carries the server-side reason and is never returned to the viewer.
type Event struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ViewerID      string    `json:"viewer_id"`
	FileID        string    `json:"file_id"`
	ViolationType string    `json:"violation_type,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent stamps a fresh event with an id and the current time.
func NewEvent(kind, viewerID, fileID, outcome string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ViewerID:  viewerID,
		FileID:    fileID,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives audit events. The durable log is owned by the surrounding
// system; this subsystem only appends, never mutates or deletes.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}
