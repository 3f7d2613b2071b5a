package audithook

import (
	"context"
	"log/slog"
)

// SlogRecorder writes audit events to a structured logger. Critical events
// log at Error, warnings at Warn and everything else at Info.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a Recorder backed by logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityCritical:
		level = slog.LevelError
	case SeverityWarning:
		level = slog.LevelWarn
	}

	attrs := make([]slog.Attr, 0, 6+len(evt.Metadata))
	attrs = append(attrs,
		slog.String("action", evt.Action),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("outcome", evt.Outcome),
		slog.String("severity", evt.Severity),
	)
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	for k, v := range evt.Metadata {
		if k == "error" {
			continue
		}
		attrs = append(attrs, slog.Any(k, v))
	}

	r.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}
