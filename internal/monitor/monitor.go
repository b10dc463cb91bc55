// Package monitor flags capacity breaches attributable to a specific
// crossing event.
package monitor

import (
	"time"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

// Evaluate checks the active count after a session open against the
// configured maximum. Returns a CapacityEvent attributing the breach to
// the identity that caused or maintained it, or nil when within capacity.
//
// Called once per open that actually started a session - never for
// duplicate entries, never on a timer.
func Evaluate(activeAfterOpen, maxCapacity int, id identity.Identity, t time.Time) *alert.CapacityEvent {
	if activeAfterOpen <= maxCapacity {
		return nil
	}
	return &alert.CapacityEvent{
		ID:       alert.NewEventID(),
		Count:    activeAfterOpen,
		Max:      maxCapacity,
		Identity: id,
		Time:     t,
	}
}
