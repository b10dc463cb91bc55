package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

// OpenOutcome classifies the result of an Open call.
type OpenOutcome int

const (
	// OpenStarted means a new session row was committed.
	OpenStarted OpenOutcome = iota + 1
	// OpenAlreadyOpen means the identity already has an open session.
	// Nothing was written; duplicate ENTRY signals never double-count.
	OpenAlreadyOpen
)

// OpenResult is the outcome of an Open call. For OpenAlreadyOpen,
// EntryTime is the existing session's entry time.
type OpenResult struct {
	Outcome   OpenOutcome
	EntryTime time.Time
}

// CloseOutcome classifies the result of a Close call.
type CloseOutcome int

const (
	// CloseClosed means the open row was updated in place and billed.
	CloseClosed CloseOutcome = iota + 1
	// CloseNoOpenSession means the identity has no open session.
	// Nothing was mutated; the caller reports the illegal exit.
	CloseNoOpenSession
)

// CloseResult is the outcome of a Close call. DurationHours and Fare are
// set only for CloseClosed.
type CloseResult struct {
	Outcome       CloseOutcome
	EntryTime     time.Time
	ExitTime      time.Time
	DurationHours float64
	Fare          float64
}

// Fare computes the fee for a stay. Any stay under one hour bills exactly
// one hour; longer stays bill whole hours, rounded up.
func Fare(durationHours, hourlyRate float64) float64 {
	billable := math.Ceil(durationHours)
	if billable < 1 {
		billable = 1
	}
	return hourlyRate * billable
}

// Open starts a session for an identity at the given entry time.
//
// Fails closed: if the identity already has an open row, no new row is
// created and OpenAlreadyOpen is returned with the existing entry time.
// The partial unique index backs this check at write time, so a race can
// never produce two open rows.
//
// A returned error means the durable write failed; in that case no
// in-memory state advanced either.
func (l *Ledger) Open(ctx context.Context, id identity.Identity, entry time.Time) (OpenResult, error) {
	key := id.Key()
	if key == "" {
		return OpenResult{}, fmt.Errorf("open session: zero identity")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return OpenResult{}, fmt.Errorf("open session %s: begin: %w", key, err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT entry_time FROM sessions
		WHERE identity = ? AND exit_time IS NULL
	`, key).Scan(&existing)
	switch {
	case err == nil:
		t, perr := parseTime(existing)
		if perr != nil {
			return OpenResult{}, fmt.Errorf("open session %s: %w", key, perr)
		}
		return OpenResult{Outcome: OpenAlreadyOpen, EntryTime: t}, nil
	case errors.Is(err, sql.ErrNoRows):
		// No open row; proceed with the insert.
	default:
		return OpenResult{}, fmt.Errorf("open session %s: lookup: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (identity, entry_time) VALUES (?, ?)
	`, key, formatTime(entry)); err != nil {
		return OpenResult{}, fmt.Errorf("open session %s: insert: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return OpenResult{}, fmt.Errorf("open session %s: commit: %w", key, err)
	}

	l.mu.Lock()
	l.active[key] = entry
	l.mu.Unlock()

	return OpenResult{Outcome: OpenStarted, EntryTime: entry}, nil
}

// Close ends the open session for an identity at the given exit time,
// updating the existing row in place with duration and fare.
//
// If the identity has no open session, CloseNoOpenSession is returned and
// nothing is mutated - an unmatched exit is the caller's to report, not
// the ledger's to guess about.
func (l *Ledger) Close(ctx context.Context, id identity.Identity, exit time.Time, hourlyRate float64) (CloseResult, error) {
	key := id.Key()
	if key == "" {
		return CloseResult{}, fmt.Errorf("close session: zero identity")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close session %s: begin: %w", key, err)
	}
	defer tx.Rollback()

	var rowID int64
	var entryStr string
	err = tx.QueryRowContext(ctx, `
		SELECT id, entry_time FROM sessions
		WHERE identity = ? AND exit_time IS NULL
	`, key).Scan(&rowID, &entryStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return CloseResult{Outcome: CloseNoOpenSession}, nil
	case err != nil:
		return CloseResult{}, fmt.Errorf("close session %s: lookup: %w", key, err)
	}

	entry, err := parseTime(entryStr)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close session %s: %w", key, err)
	}

	durationHours := exit.Sub(entry).Hours()
	fare := Fare(durationHours, hourlyRate)

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET exit_time = ?, duration_hours = ?, fare = ?
		WHERE id = ? AND exit_time IS NULL
	`, formatTime(exit), durationHours, fare, rowID)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close session %s: update: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CloseResult{}, fmt.Errorf("close session %s: rows affected: %w", key, err)
	}
	if n != 1 {
		return CloseResult{}, fmt.Errorf("close session %s: expected 1 row updated, got %d", key, n)
	}

	if err := tx.Commit(); err != nil {
		return CloseResult{}, fmt.Errorf("close session %s: commit: %w", key, err)
	}

	l.mu.Lock()
	delete(l.active, key)
	l.mu.Unlock()

	return CloseResult{
		Outcome:       CloseClosed,
		EntryTime:     entry,
		ExitTime:      exit,
		DurationHours: durationHours,
		Fare:          fare,
	}, nil
}

// ErrMigrationTargetOpen is returned by MigrateIdentity when the target
// identity already has its own open session. Merging the two rows would
// mask a data-integrity violation, so the migration is refused.
var ErrMigrationTargetOpen = errors.New("migration target already has an open session")

// MigrateIdentity moves the open session row from one identity to another,
// preserving its entry time. Returns false (and no error) if the source
// identity has no open row - the caller decides how to report that.
//
// The rename and the active index update happen together: either both
// identities' state moves, or nothing changes.
func (l *Ledger) MigrateIdentity(ctx context.Context, old, new identity.Identity) (bool, error) {
	oldKey, newKey := old.Key(), new.Key()
	if oldKey == "" || newKey == "" {
		return false, fmt.Errorf("migrate identity: zero identity")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("migrate %s -> %s: begin: %w", oldKey, newKey, err)
	}
	defer tx.Rollback()

	var targetOpen int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE identity = ? AND exit_time IS NULL
	`, newKey).Scan(&targetOpen); err != nil {
		return false, fmt.Errorf("migrate %s -> %s: target lookup: %w", oldKey, newKey, err)
	}
	if targetOpen > 0 {
		return false, fmt.Errorf("migrate %s -> %s: %w", oldKey, newKey, ErrMigrationTargetOpen)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET identity = ?
		WHERE identity = ? AND exit_time IS NULL
	`, newKey, oldKey)
	if err != nil {
		return false, fmt.Errorf("migrate %s -> %s: update: %w", oldKey, newKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("migrate %s -> %s: rows affected: %w", oldKey, newKey, err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("migrate %s -> %s: commit: %w", oldKey, newKey, err)
	}

	l.mu.Lock()
	if entry, ok := l.active[oldKey]; ok {
		delete(l.active, oldKey)
		l.active[newKey] = entry
	}
	l.mu.Unlock()

	return true, nil
}

// ActiveCount returns the number of currently open sessions.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// ActiveIdentities returns the identities with open sessions.
func (l *Ledger) ActiveIdentities() []identity.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]identity.Identity, 0, len(l.active))
	for key := range l.active {
		id, err := identity.ParseKey(key)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ActiveEntryTime returns the entry time of an identity's open session.
func (l *Ledger) ActiveEntryTime(id identity.Identity) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.active[id.Key()]
	return t, ok
}

// HasOpenSession reports whether the identity currently has an open session.
func (l *Ledger) HasOpenSession(id identity.Identity) bool {
	_, ok := l.ActiveEntryTime(id)
	return ok
}
