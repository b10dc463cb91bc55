package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvTimeLayout matches the timestamp format the original log files used,
// which the downstream reporting tools still expect.
const csvTimeLayout = "2006-01-02 15:04:05"

// csvHeader is the column layout other tools rely on. Order matters.
var csvHeader = []string{"Entry Time", "Exit Time", "Plate Number", "Duration (hours)", "Fare"}

// ExportCSV writes every ledger row to w in the legacy log layout.
// Open sessions have empty exit, duration, and fare columns.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer) error {
	sessions, err := l.Sessions(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, s := range sessions {
		record := []string{
			s.EntryTime.UTC().Format(csvTimeLayout),
			formatCSVTime(s.ExitTime),
			s.Identity,
			formatCSVFloat(s.DurationHours),
			formatCSVFloat(s.Fare),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s: %w", s.Identity, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(csvTimeLayout)
}

func formatCSVFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
