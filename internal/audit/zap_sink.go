package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink writes audit events as structured log entries. In deployments the
// surrounding platform ships these lines to the durable audit store.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink backed by the given logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Record emits one log entry per event.
func (s *ZapSink) Record(_ context.Context, ev Event) error {
	s.logger.Info("audit event",
		zap.String("event_id", ev.ID),
		zap.String("kind", ev.Kind),
		zap.String("viewer_id", ev.ViewerID),
		zap.String("file_id", ev.FileID),
		zap.String("violation_type", ev.ViolationType),
		zap.String("outcome", ev.Outcome),
		zap.String("detail", ev.Detail),
		zap.Time("timestamp", ev.Timestamp),
	)
	return nil
}
