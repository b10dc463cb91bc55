// Package boundary converts per-identity vehicle positions into
// entry/exit crossing signals for a monitored line.
//
// The detector is a per-identity two-state machine with a hysteresis
// margin: samples inside the deadband around the line neither update the
// stored side nor emit an event, which keeps jittery detections near the
// boundary from producing phantom crossings.
package boundary

import (
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

// Event is the crossing signal derived from one position sample.
type Event int

const (
	// None means no crossing was observed.
	None Event = iota
	// Entry means the vehicle crossed from above the line to below it.
	Entry
	// Exit means the vehicle crossed from below the line to above it.
	Exit
)

// String implements fmt.Stringer for log output.
func (e Event) String() string {
	switch e {
	case Entry:
		return "ENTRY"
	case Exit:
		return "EXIT"
	default:
		return "NONE"
	}
}

// Side is which side of the line an identity was last seen on.
type Side int

const (
	sideUnset Side = iota
	// Above: center-y strictly less than the line position.
	Above
	// Below: center-y at or past the line position.
	Below
)

// DefaultMargin is the hysteresis margin in pixels. Larger values trade
// responsiveness for noise rejection.
const DefaultMargin = 15.0

// Detector tracks the last known side of the line for every identity.
//
// Not safe for concurrent use; the engine's single-writer loop is the only
// caller during a run.
type Detector struct {
	lineY  float64
	margin float64
	sides  map[string]Side
}

// NewDetector creates a detector for a line at lineY with the given
// hysteresis margin. A margin <= 0 falls back to DefaultMargin.
func NewDetector(lineY, margin float64) *Detector {
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Detector{
		lineY:  lineY,
		margin: margin,
		sides:  make(map[string]Side),
	}
}

// Observe feeds one position sample for an identity and returns the
// crossing event, if any.
//
// The first sample for an identity establishes its baseline side and never
// emits an event: inferring a crossing from a single sample would count
// vehicles that were already inside when monitoring started.
//
// Samples inside the deadband (|cy - lineY| < margin) return None without
// touching the stored side.
func (d *Detector) Observe(id identity.Identity, cy float64) Event {
	key := id.Key()

	current := Below
	if cy < d.lineY {
		current = Above
	}

	prev, seen := d.sides[key]
	if !seen {
		d.sides[key] = current
		return None
	}

	if abs(cy-d.lineY) < d.margin {
		return None
	}

	switch {
	case prev == Above && current == Below:
		d.sides[key] = current
		return Entry
	case prev == Below && current == Above:
		d.sides[key] = current
		return Exit
	default:
		return None
	}
}

// Side returns the stored side for an identity, or false if the identity
// has never been observed.
func (d *Detector) Side(id identity.Identity) (Side, bool) {
	s, ok := d.sides[id.Key()]
	return s, ok
}

// Migrate moves the stored side from one identity to another. Used when an
// ephemeral identity is resolved to a permanent one so subsequent
// observations under the new identity continue the same state machine.
//
// Returns false if the old identity has no stored side. If the new identity
// already has state (it was observed independently), the old entry is
// dropped and the new identity's state wins.
func (d *Detector) Migrate(old, new identity.Identity) bool {
	oldKey, newKey := old.Key(), new.Key()
	side, ok := d.sides[oldKey]
	if !ok {
		return false
	}
	delete(d.sides, oldKey)
	if _, exists := d.sides[newKey]; !exists {
		d.sides[newKey] = side
	}
	return true
}

// Forget drops the stored side for an identity. Called when a tracker
// disappears for good.
func (d *Detector) Forget(id identity.Identity) {
	delete(d.sides, id.Key())
}

// TrackedCount returns the number of identities with stored state.
func (d *Detector) TrackedCount() int {
	return len(d.sides)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
