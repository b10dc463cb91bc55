// Package identity models the two namespaces a vehicle can be known by:
// the short-lived tracker ID assigned by the detection pipeline, and the
// permanent license plate that becomes available once recognition completes.
//
// Exactly one Identity value stands for a physical vehicle at any instant.
// Once a plate is confirmed for a tracker, the ephemeral identity is
// replaced, never kept alongside (see resolver.Resolver.BindPlate).
package identity

import (
	"fmt"
	"strings"
)

// Kind distinguishes ephemeral (tracker-derived) from permanent
// (plate-derived) identities.
type Kind int

const (
	// Ephemeral identities come from the object tracker and are only
	// meaningful within one monitoring run.
	Ephemeral Kind = iota + 1
	// Permanent identities are validated license plates.
	Permanent
)

// Identity is a closed tagged value: either Ephemeral(trackerID) or
// Permanent(plate). The zero value is invalid.
type Identity struct {
	kind  Kind
	value string
}

// FromTracker builds an ephemeral identity for a tracker ID.
func FromTracker(trackerID string) Identity {
	return Identity{kind: Ephemeral, value: trackerID}
}

// FromPlate builds a permanent identity for a validated plate.
// The caller is responsible for validating the plate first (see Grammar).
func FromPlate(plate string) Identity {
	return Identity{kind: Permanent, value: plate}
}

// Kind returns the identity's namespace.
func (id Identity) Kind() Kind { return id.kind }

// IsZero reports whether the identity is the invalid zero value.
func (id Identity) IsZero() bool { return id.kind == 0 }

// IsPermanent reports whether the identity is a validated plate.
func (id Identity) IsPermanent() bool { return id.kind == Permanent }

// TrackerID returns the tracker ID for ephemeral identities, "" otherwise.
func (id Identity) TrackerID() string {
	if id.kind == Ephemeral {
		return id.value
	}
	return ""
}

// Plate returns the plate text for permanent identities, "" otherwise.
func (id Identity) Plate() string {
	if id.kind == Permanent {
		return id.value
	}
	return ""
}

// Key returns the stable string form used as the ledger row key and as the
// map key for boundary state. Ephemeral identities are prefixed so they can
// never collide with plate text.
//
// Other tools read these keys out of the ledger database, so the format is
// a contract: "track:<id>" for ephemeral, bare plate text for permanent.
func (id Identity) Key() string {
	switch id.kind {
	case Ephemeral:
		return "track:" + id.value
	case Permanent:
		return id.value
	default:
		return ""
	}
}

// ParseKey reconstructs an Identity from its Key form. The "track:"
// prefix is reserved for the ephemeral namespace, so a key carrying it
// with no tracker ID is malformed rather than plate text.
func ParseKey(key string) (Identity, error) {
	if key == "" {
		return Identity{}, fmt.Errorf("empty identity key")
	}
	const prefix = "track:"
	if strings.HasPrefix(key, prefix) {
		trackerID := key[len(prefix):]
		if trackerID == "" {
			return Identity{}, fmt.Errorf("identity key %q has empty tracker id", key)
		}
		return FromTracker(trackerID), nil
	}
	return FromPlate(key), nil
}

// String implements fmt.Stringer. Same as Key.
func (id Identity) String() string { return id.Key() }
