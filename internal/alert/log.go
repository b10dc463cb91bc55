package alert

import (
	"context"
	"log/slog"
)

// LogAlerter writes alerts to the structured log. The default sink for
// development runs and for deployments without an SMTP transport.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a LogAlerter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a LogAlerter) CapacityExceeded(_ context.Context, ev CapacityEvent) error {
	a.logger().Warn("capacity exceeded",
		"event_id", ev.ID,
		"count", ev.Count,
		"max", ev.Max,
		"identity", ev.Identity.Key(),
		"time", ev.Time,
	)
	return nil
}

func (a LogAlerter) IllegalExit(_ context.Context, ev IllegalExitEvent) error {
	a.logger().Warn("illegal exit",
		"event_id", ev.ID,
		"identity", ev.Identity.Key(),
		"time", ev.Time,
	)
	return nil
}
