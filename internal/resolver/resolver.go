// Package resolver owns the mapping from tracker identities to permanent
// plate identities, and the migration of in-flight state when a plate
// becomes available after the vehicle already crossed the boundary.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

// MigrationOutcome classifies the result of a BindPlate call.
type MigrationOutcome int

const (
	// MigrationBound means no open session existed yet; the binding is
	// remembered and future observations resolve to the plate.
	MigrationBound MigrationOutcome = iota + 1
	// MigrationMigrated means the open session and boundary state moved
	// from the ephemeral identity to the plate.
	MigrationMigrated
	// MigrationIgnored means the tracker already has a confirmed plate;
	// the first accepted plate per tracker is final.
	MigrationIgnored
	// MigrationRejected means the plate failed format validation.
	MigrationRejected
	// MigrationMissing means the active index said a session was open but
	// the ledger row was gone (race or prior error). The binding is still
	// recorded; both identities stay independently addressable. Logged,
	// not fatal.
	MigrationMissing
)

// String implements fmt.Stringer for log output.
func (o MigrationOutcome) String() string {
	switch o {
	case MigrationBound:
		return "bound"
	case MigrationMigrated:
		return "migrated"
	case MigrationIgnored:
		return "ignored"
	case MigrationRejected:
		return "rejected"
	case MigrationMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// MigrationResult is the outcome of a BindPlate call. Plate is the cleaned
// plate text (set for every outcome except MigrationRejected, where it
// holds the cleaned candidate that failed validation).
type MigrationResult struct {
	Outcome MigrationOutcome
	Plate   string
}

// Ledger is the ledger surface the resolver migrates sessions through.
type Ledger interface {
	// HasOpenSession reports whether the identity has an open session.
	HasOpenSession(id identity.Identity) bool
	// MigrateIdentity renames the open session row, preserving its entry
	// time. Returns false if the source has no open row.
	MigrateIdentity(ctx context.Context, old, new identity.Identity) (bool, error)
}

// Boundary is the crossing-detector surface the resolver migrates
// side-of-line state through.
type Boundary interface {
	Migrate(old, new identity.Identity) bool
}

// Resolver maps tracker IDs to confirmed plates and performs migrations.
//
// Not safe for concurrent use on its own; the engine's single-writer loop
// serializes BindPlate against observation processing, which is what makes
// the migration atomic with respect to concurrent observations.
type Resolver struct {
	grammar  *identity.Grammar
	ledger   Ledger
	boundary Boundary
	logger   *slog.Logger

	// plates holds the confirmed plate per tracker ID. First write wins.
	plates map[string]string
}

// New creates a Resolver using the given plate grammar.
func New(grammar *identity.Grammar, ledger Ledger, boundary Boundary, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		grammar:  grammar,
		ledger:   ledger,
		boundary: boundary,
		logger:   logger,
		plates:   make(map[string]string),
	}
}

// Resolve returns the identity to process an observation under: the
// permanent plate if one is bound to the tracker, else the ephemeral
// tracker identity.
func (r *Resolver) Resolve(trackerID string) identity.Identity {
	if plate, ok := r.plates[trackerID]; ok {
		return identity.FromPlate(plate)
	}
	return identity.FromTracker(trackerID)
}

// BindPlate validates a recognition result and, when accepted, migrates
// any in-flight session and boundary state from the tracker's ephemeral
// identity to the plate.
//
// All three structures - session row, boundary state, active index - move
// together; on failure nothing is half-moved and both identities remain
// queryable.
func (r *Resolver) BindPlate(ctx context.Context, trackerID, rawPlate string) (MigrationResult, error) {
	plate, ok := r.grammar.Validate(rawPlate)
	if !ok {
		r.logger.Debug("plate rejected by grammar", "tracker", trackerID, "raw", rawPlate, "cleaned", plate)
		return MigrationResult{Outcome: MigrationRejected, Plate: plate}, nil
	}

	if existing, bound := r.plates[trackerID]; bound {
		// First accepted plate per tracker is final.
		r.logger.Debug("plate already bound, ignoring later recognition",
			"tracker", trackerID, "bound", existing, "ignored", plate)
		return MigrationResult{Outcome: MigrationIgnored, Plate: existing}, nil
	}

	eph := identity.FromTracker(trackerID)
	perm := identity.FromPlate(plate)

	if !r.ledger.HasOpenSession(eph) {
		// Nothing in flight: just remember the binding. Boundary state, if
		// any, still moves so later observations continue the same state
		// machine under the new identity.
		r.plates[trackerID] = plate
		r.boundary.Migrate(eph, perm)
		r.logger.Info("plate bound", "tracker", trackerID, "plate", plate)
		return MigrationResult{Outcome: MigrationBound, Plate: plate}, nil
	}

	migrated, err := r.ledger.MigrateIdentity(ctx, eph, perm)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("bind plate %s to tracker %s: %w", plate, trackerID, err)
	}
	if !migrated {
		// The index said open but the row is gone. Record the binding and
		// leave both identities addressable rather than fabricating state.
		r.plates[trackerID] = plate
		r.logger.Warn("migration found no open session row",
			"tracker", trackerID, "plate", plate)
		return MigrationResult{Outcome: MigrationMissing, Plate: plate}, nil
	}

	r.boundary.Migrate(eph, perm)
	r.plates[trackerID] = plate
	r.logger.Info("session migrated to plate", "tracker", trackerID, "plate", plate)
	return MigrationResult{Outcome: MigrationMigrated, Plate: plate}, nil
}

// Bound returns the confirmed plate for a tracker, if any.
func (r *Resolver) Bound(trackerID string) (string, bool) {
	plate, ok := r.plates[trackerID]
	return plate, ok
}
