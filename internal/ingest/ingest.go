// Package ingest reads the detection pipeline's event stream.
//
// The stream is JSON Lines: one object per line, each either a position
// sample or a plate recognition. The reader is deliberately forgiving at
// the transport level and strict at the content level: blank lines are
// skipped, a syntactically broken line is reported with its line number,
// and content validation is left to the engine so both ingest paths
// (stream and scenario harness) reject the same inputs the same way.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
)

// Record is one line of the input stream.
type Record struct {
	Type      string    `json:"type"`
	TrackerID string    `json:"tracker_id"`
	CY        float64   `json:"cy"`
	Time      time.Time `json:"time"`
	PlateHint string    `json:"plate_hint,omitempty"`
	PlateText string    `json:"plate_text,omitempty"`
}

const (
	recordObservation = "observation"
	recordRecognition = "recognition"
)

// Event converts the record to an engine event.
func (r Record) Event() (engine.Event, error) {
	switch r.Type {
	case recordObservation:
		return engine.ObservationEvent(engine.Observation{
			TrackerID: r.TrackerID,
			CY:        r.CY,
			Time:      r.Time,
			PlateHint: r.PlateHint,
		}), nil
	case recordRecognition:
		return engine.RecognitionEvent(engine.Recognition{
			TrackerID: r.TrackerID,
			PlateText: r.PlateText,
		}), nil
	default:
		return engine.Event{}, fmt.Errorf("%w: unknown record type %q", engine.ErrMalformedInput, r.Type)
	}
}

// Reader decodes events from a JSON Lines stream.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r. Lines up to 1 MiB are accepted, far beyond any
// record the pipeline emits.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{scanner: sc}
}

// Next returns the next event in the stream. Blank lines are skipped.
// Returns io.EOF at end of stream. A malformed line yields an error
// wrapping engine.ErrMalformedInput; the reader stays usable and the
// caller decides whether to skip or stop.
func (r *Reader) Next() (engine.Event, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return engine.Event{}, fmt.Errorf("%w: line %d: %v", engine.ErrMalformedInput, r.line, err)
		}
		ev, err := rec.Event()
		if err != nil {
			return engine.Event{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return engine.Event{}, fmt.Errorf("read stream: %w", err)
	}
	return engine.Event{}, io.EOF
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Pump reads the whole stream into the engine's queue. Malformed lines
// are logged and skipped; stream-level read failures stop the pump.
// Returns the number of events enqueued.
func Pump(ctx context.Context, src io.Reader, eng *engine.Engine, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewReader(src)

	enqueued := 0
	for {
		select {
		case <-ctx.Done():
			return enqueued, ctx.Err()
		default:
		}

		ev, err := r.Next()
		switch {
		case errors.Is(err, io.EOF):
			return enqueued, nil
		case errors.Is(err, engine.ErrMalformedInput):
			logger.Warn("skipping malformed input line", "line", r.Line(), "error", err)
			continue
		case err != nil:
			return enqueued, err
		}

		if !eng.Enqueue(ev) {
			return enqueued, fmt.Errorf("engine stopped with input remaining at line %d", r.Line())
		}
		enqueued++
	}
}
