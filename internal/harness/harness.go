package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/boundary"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/resolver"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory ledger
// 2. Build detector, resolver, and engine from the scenario config
// 3. Process every event synchronously, collecting the trace
// 4. Evaluate assertions against trace and ledger
func Run(scenario *Scenario) (*Result, error) {
	l, err := ledger.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory ledger: %w", err)
	}
	defer l.Shutdown()

	pattern := scenario.Config.PlateGrammar
	if pattern == "" {
		pattern = identity.DefaultPlateGrammar
	}
	grammar, err := identity.NewGrammar(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid plate grammar: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // suppress logs in tests
	detector := boundary.NewDetector(scenario.Config.LineY, scenario.Config.Margin)
	res := resolver.New(grammar, l, detector, logger)

	eng := engine.New(l, detector, res,
		engine.Limits{MaxCapacity: scenario.Config.MaxCapacity, HourlyRate: scenario.Config.HourlyRate},
		engine.WithAlerter(alert.Nop{}),
		engine.WithLogger(logger),
	)

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Events {
		ev, trackerKey := stepToEvent(step)
		procRes, err := eng.Process(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		collectTrace(result, procRes, trackerKey)
	}

	actx := &AssertionContext{Ledger: l, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// stepToEvent converts a scenario step to an engine event. The returned
// key is the ephemeral identity of the step's tracker, used to attribute
// migration trace events to their source.
func stepToEvent(step EventStep) (engine.Event, string) {
	if step.Observe != nil {
		o := step.Observe
		return engine.ObservationEvent(engine.Observation{
			TrackerID: o.Tracker,
			CY:        o.CY,
			Time:      o.At.UTC(),
			PlateHint: o.PlateHint,
		}), identity.FromTracker(o.Tracker).Key()
	}
	r := step.Recognize
	return engine.RecognitionEvent(engine.Recognition{
		TrackerID: r.Tracker,
		PlateText: r.Plate,
	}), identity.FromTracker(r.Tracker).Key()
}

// collectTrace converts one processing result into trace events.
func collectTrace(result *Result, res engine.Result, trackerKey string) {
	if res.Migration != nil && res.Migration.Outcome == resolver.MigrationMigrated {
		result.AddTrace(TraceEvent{
			Seq:      res.Seq,
			Type:     TraceMigration,
			Identity: trackerKey,
			Plate:    res.Migration.Plate,
		})
	}

	if res.Open != nil {
		typ := TraceEntry
		if res.Open.Outcome == ledger.OpenAlreadyOpen {
			typ = TraceDuplicateEntry
		}
		result.AddTrace(TraceEvent{
			Seq:      res.Seq,
			Type:     typ,
			Identity: res.Identity.Key(),
		})
	}

	if res.Capacity != nil {
		result.AddTrace(TraceEvent{
			Seq:      res.Seq,
			Type:     TraceCapacityAlert,
			Identity: res.Identity.Key(),
			Count:    res.Capacity.Count,
			Max:      res.Capacity.Max,
		})
	}

	if res.Close != nil {
		if res.Close.Outcome == ledger.CloseNoOpenSession {
			result.AddTrace(TraceEvent{
				Seq:      res.Seq,
				Type:     TraceIllegalExit,
				Identity: res.Identity.Key(),
			})
			return
		}
		result.AddTrace(TraceEvent{
			Seq:           res.Seq,
			Type:          TraceExit,
			Identity:      res.Identity.Key(),
			DurationHours: res.Close.DurationHours,
			Fare:          res.Close.Fare,
		})
	}
}
