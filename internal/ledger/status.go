package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

// Session is one ledger row as exposed to the reporting surface.
// Exit, DurationHours, and Fare are nil while the session is open.
type Session struct {
	ID            int64      `json:"id"`
	Identity      string     `json:"identity"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	Fare          *float64   `json:"fare,omitempty"`
}

// Open reports whether the session has no exit yet.
func (s Session) Open() bool { return s.ExitTime == nil }

// Status is the read-only summary served to the reporting collaborator.
type Status struct {
	ActiveCount        int       `json:"active_count"`
	AvailableSpots     int       `json:"available_spots"`
	CapacityPercentage float64   `json:"capacity_percentage"`
	OverCapacity       bool      `json:"over_capacity"`
	MaxCapacity        int       `json:"max_capacity"`
	HourlyRate         float64   `json:"hourly_rate"`
	TotalEntries       int       `json:"total_entries"`
	TotalExits         int       `json:"total_exits"`
	RevenueToDate      float64   `json:"revenue_to_date"`
	Sessions           []Session `json:"sessions"`
}

// Sessions returns every ledger row, oldest entry first.
func (l *Ledger) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, identity, entry_time, exit_time, duration_hours, fare
		FROM sessions
		ORDER BY entry_time ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(rows *sql.Rows) (Session, error) {
	var (
		s        Session
		entryStr string
		exitStr  sql.NullString
		duration sql.NullFloat64
		fare     sql.NullFloat64
	)
	if err := rows.Scan(&s.ID, &s.Identity, &entryStr, &exitStr, &duration, &fare); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	entry, err := parseTime(entryStr)
	if err != nil {
		return Session{}, err
	}
	s.EntryTime = entry

	if exitStr.Valid {
		exit, err := parseTime(exitStr.String)
		if err != nil {
			return Session{}, err
		}
		s.ExitTime = &exit
	}
	if duration.Valid {
		d := duration.Float64
		s.DurationHours = &d
	}
	if fare.Valid {
		f := fare.Float64
		s.Fare = &f
	}
	return s, nil
}

// Status summarizes the ledger against the current capacity and rate.
// maxCapacity and hourlyRate are passed per call so the surrounding
// process can hot-reload them without touching the ledger.
func (l *Ledger) Status(ctx context.Context, maxCapacity int, hourlyRate float64) (Status, error) {
	sessions, err := l.Sessions(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		MaxCapacity: maxCapacity,
		HourlyRate:  hourlyRate,
		Sessions:    sessions,
	}
	for _, s := range sessions {
		st.TotalEntries++
		if s.Open() {
			st.ActiveCount++
			continue
		}
		st.TotalExits++
		if s.Fare != nil {
			st.RevenueToDate += *s.Fare
		}
	}

	st.AvailableSpots = maxCapacity - st.ActiveCount
	if st.AvailableSpots < 0 {
		st.AvailableSpots = 0
	}
	if maxCapacity > 0 {
		pct := float64(st.ActiveCount) / float64(maxCapacity) * 100
		st.CapacityPercentage = math.Round(pct*10) / 10
	}
	st.OverCapacity = st.ActiveCount > maxCapacity

	return st, nil
}
