// Package alert defines the outbound alert events and the sink interface
// the engine fires them into. Delivery is fire-and-forget: a sink reports
// success or failure back for logging and the engine moves on either way.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

// CapacityEvent records a capacity breach attributable to one crossing.
// Emitted by the engine, never stored by the core.
type CapacityEvent struct {
	ID       string            `json:"id"`
	Count    int               `json:"count"`
	Max      int               `json:"max"`
	Identity identity.Identity `json:"-"`
	Time     time.Time         `json:"time"`
}

// IllegalExitEvent records an EXIT signal with no matching open session.
type IllegalExitEvent struct {
	ID       string            `json:"id"`
	Identity identity.Identity `json:"-"`
	Time     time.Time         `json:"time"`
}

// NewEventID returns a time-ordered token for alert correlation.
// Falls back to UUIDv4 if the system clock is unusable for v7.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Alerter is the outbound alert sink. Implementations must not block
// processing: slow transports should do their own buffering.
type Alerter interface {
	CapacityExceeded(ctx context.Context, ev CapacityEvent) error
	IllegalExit(ctx context.Context, ev IllegalExitEvent) error
}

// Nop is an Alerter that discards everything. Used in tests and when no
// alert transport is configured.
type Nop struct{}

func (Nop) CapacityExceeded(context.Context, CapacityEvent) error { return nil }
func (Nop) IllegalExit(context.Context, IllegalExitEvent) error   { return nil }
