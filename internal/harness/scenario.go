package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios feed a fixed observation sequence through a fresh engine and
// assert on the resulting trace and ledger state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config sets the lot parameters the engine runs under.
	Config LotConfig `yaml:"config"`

	// Events is the input sequence: position observations and plate
	// recognitions, processed in order.
	Events []EventStep `yaml:"events"`

	// Assertions validate the final trace and ledger state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// LotConfig is the subset of lot configuration a scenario controls.
type LotConfig struct {
	LineY        float64 `yaml:"line_y"`
	Margin       float64 `yaml:"margin,omitempty"`
	MaxCapacity  int     `yaml:"max_capacity"`
	HourlyRate   float64 `yaml:"hourly_rate"`
	PlateGrammar string  `yaml:"plate_grammar,omitempty"`
}

// EventStep is one input to the engine. Exactly one of Observe or
// Recognize must be set.
type EventStep struct {
	Observe   *ObserveStep   `yaml:"observe,omitempty"`
	Recognize *RecognizeStep `yaml:"recognize,omitempty"`
}

// ObserveStep is a position sample for a tracker.
type ObserveStep struct {
	Tracker   string    `yaml:"tracker"`
	CY        float64   `yaml:"cy"`
	At        time.Time `yaml:"at"`
	PlateHint string    `yaml:"plate_hint,omitempty"`
}

// RecognizeStep is an out-of-band plate recognition for a tracker.
type RecognizeStep struct {
	Tracker string `yaml:"tracker"`
	Plate   string `yaml:"plate"`
}

// TraceRef names a trace event for ordering assertions.
type TraceRef struct {
	Event    string `yaml:"event"`
	Identity string `yaml:"identity,omitempty"`
}

// Assertion validates trace or final ledger state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an effect appears in the trace
	// - "trace_order": Check effects appear in order
	// - "trace_count": Check an effect appears exactly N times
	// - "final_state": Query the sessions table and verify expected values
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Identity narrows the match to one identity key (optional).
	Identity string `yaml:"identity,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Order is the expected effect order (trace_order). Effects don't
	// need to be consecutive.
	Order []TraceRef `yaml:"order,omitempty"`

	// Where specifies query filters (final_state). Exact match.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config.MaxCapacity <= 0 {
		return fmt.Errorf("config.max_capacity must be positive")
	}
	if s.Config.HourlyRate < 0 {
		return fmt.Errorf("config.hourly_rate must not be negative")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Events {
		switch {
		case step.Observe != nil && step.Recognize != nil:
			return fmt.Errorf("events[%d]: observe and recognize are mutually exclusive", i)
		case step.Observe != nil:
			if step.Observe.Tracker == "" {
				return fmt.Errorf("events[%d].observe: tracker is required", i)
			}
			if step.Observe.At.IsZero() {
				return fmt.Errorf("events[%d].observe: at is required", i)
			}
		case step.Recognize != nil:
			if step.Recognize.Tracker == "" {
				return fmt.Errorf("events[%d].recognize: tracker is required", i)
			}
			if step.Recognize.Plate == "" {
				return fmt.Errorf("events[%d].recognize: plate is required", i)
			}
		default:
			return fmt.Errorf("events[%d]: observe or recognize is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for trace_order", index)
		}
		for j, ref := range a.Order {
			if ref.Event == "" {
				return fmt.Errorf("assertions[%d].order[%d]: event is required", index, j)
			}
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
