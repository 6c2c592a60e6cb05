package audit

import (
	"context"

	"tandem-api/internal/observability/logger"

	"go.uber.org/zap"
)

// LogRecorder mirrors every audit event into the structured log stream so
// operators can tail denials and failures without querying the audit table.
type LogRecorder struct {
	log *logger.Logger
}

// NewLogRecorder creates a LogRecorder.
func NewLogRecorder(log *logger.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, event Event) error {
	fields := []logger.Field{
		logger.Module("audit"),
		logger.Action("entry"),
		zap.String("workspace_id", event.WorkspaceID),
		zap.String("audit_action", event.Action),
		zap.String("resource_type", event.ResourceType),
		zap.String("outcome", string(event.Outcome)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *event.ActorID))
	}
	if event.ResourceID != nil {
		fields = append(fields, zap.String("resource_id", *event.ResourceID))
	}

	switch event.Outcome {
	case OutcomeDenied, OutcomeFailure:
		r.log.Warn(ctx, "audit event", fields...)
	default:
		r.log.Info(ctx, "audit event", fields...)
	}
	return nil
}
