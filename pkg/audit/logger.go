package audit

import (
	"context"
	"log/slog"
	"time"
)

// SystemEventType categorizes a process-level event, distinct from a tip's
// per-entry audit trail (see Store/Record). These are operational signals
// (startup, config reload, queue backpressure) that never attach to a
// specific tip.
type SystemEventType string

const (
	SystemEventStartup     SystemEventType = "startup"
	SystemEventShutdown    SystemEventType = "shutdown"
	SystemEventConfigLoad  SystemEventType = "config_load"
	SystemEventBackpressure SystemEventType = "queue_backpressure"
	SystemEventRuleHydrate SystemEventType = "legal_rule_hydrate"
)

// SystemEvent is a structured operational log record.
type SystemEvent struct {
	Type      SystemEventType `json:"type"`
	Action    string          `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    map[string]any  `json:"detail,omitempty"`
}

// SystemLogger records operational events. The default implementation
// writes structured log lines via log/slog; tests can substitute a
// recording logger.
type SystemLogger interface {
	Record(ctx context.Context, eventType SystemEventType, action string, detail map[string]any)
}

type slogLogger struct {
	logger *slog.Logger
}

// NewSystemLogger returns a SystemLogger backed by the given slog.Logger,
// or slog.Default() if nil.
func NewSystemLogger(l *slog.Logger) SystemLogger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (l *slogLogger) Record(ctx context.Context, eventType SystemEventType, action string, detail map[string]any) {
	attrs := make([]any, 0, 2+2*len(detail))
	attrs = append(attrs, "event_type", string(eventType), "action", action)
	for k, v := range detail {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "system event", attrs...)
}
