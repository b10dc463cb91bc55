package engine

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeObservation is a per-vehicle position sample from the
	// detection pipeline.
	EventTypeObservation EventType = iota + 1
	// EventTypeRecognition is a plate-recognition result, delivered out of
	// band from position updates and possibly long after the crossing.
	EventTypeRecognition
)

// Observation is one (tracker, position, time) sample from the detector.
// PlateHint optionally carries a raw recognition that arrived on the same
// frame; it is bound before the observation is processed.
type Observation struct {
	TrackerID string
	CY        float64
	Time      time.Time
	PlateHint string
}

// Recognition is an asynchronous plate-recognition result for a tracker.
type Recognition struct {
	TrackerID string
	PlateText string
}

// Event wraps observations and recognitions for the event queue.
type Event struct {
	Type        EventType
	Observation *Observation
	Recognition *Recognition
}

// ObservationEvent wraps an Observation for enqueueing.
func ObservationEvent(obs Observation) Event {
	return Event{Type: EventTypeObservation, Observation: &obs}
}

// RecognitionEvent wraps a Recognition for enqueueing.
func RecognitionEvent(rec Recognition) Event {
	return Event{Type: EventTypeRecognition, Recognition: &rec}
}

// ErrMalformedInput marks input rejected before reaching the state
// machines. Match with errors.Is.
var ErrMalformedInput = errors.New("malformed input")

func validateObservation(obs *Observation) error {
	if obs == nil {
		return fmt.Errorf("%w: observation event missing observation data", ErrMalformedInput)
	}
	if obs.TrackerID == "" {
		return fmt.Errorf("%w: observation missing tracker id", ErrMalformedInput)
	}
	if math.IsNaN(obs.CY) || math.IsInf(obs.CY, 0) {
		return fmt.Errorf("%w: observation position is not finite (%v)", ErrMalformedInput, obs.CY)
	}
	if obs.Time.IsZero() {
		return fmt.Errorf("%w: observation missing timestamp", ErrMalformedInput)
	}
	return nil
}

func validateRecognition(rec *Recognition) error {
	if rec == nil {
		return fmt.Errorf("%w: recognition event missing recognition data", ErrMalformedInput)
	}
	if rec.TrackerID == "" {
		return fmt.Errorf("%w: recognition missing tracker id", ErrMalformedInput)
	}
	if rec.PlateText == "" {
		return fmt.Errorf("%w: recognition missing plate text", ErrMalformedInput)
	}
	return nil
}
