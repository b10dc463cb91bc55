// Package engine sequences observation processing: crossing detection,
// identity resolution, session bookkeeping, capacity evaluation, and
// outbound alerting.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/boundary"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/monitor"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/resolver"
)

// Reporter receives completed-session records. The reporting transport is
// external; failures are logged, never fatal.
type Reporter interface {
	SessionClosed(ctx context.Context, id identity.Identity, res ledger.CloseResult) error
}

// LogReporter writes completed sessions to the structured log. The default
// when no reporting transport is configured.
type LogReporter struct{}

func (LogReporter) SessionClosed(_ context.Context, id identity.Identity, res ledger.CloseResult) error {
	slog.Info("session closed",
		"identity", id.Key(),
		"entry", res.EntryTime,
		"exit", res.ExitTime,
		"duration_hours", res.DurationHours,
		"fare", res.Fare,
	)
	return nil
}

// Engine is the single-writer observation loop.
//
// One observation is fully processed (detector, resolver, ledger,
// monitor) before the next is accepted, which eliminates races between
// crossing detection and session mutation for the same identity.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - SetLimits(): safe from any goroutine (atomic swap)
//
// ERROR HANDLING: On event processing failure the error is logged with
// full event context and processing continues. Illegal exits and
// duplicate entries are expected conditions, reported to collaborators,
// never aborts.
type Engine struct {
	ledger   *ledger.Ledger
	detector *boundary.Detector
	resolver *resolver.Resolver
	alerter  alert.Alerter
	reporter Reporter
	limits   *limitsHolder
	clock    *Clock
	queue    *eventQueue
	logger   *slog.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithAlerter sets the outbound alert sink. Defaults to alert.LogAlerter.
func WithAlerter(a alert.Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithReporter sets the completed-session sink. Defaults to LogReporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine owning the process-wide detector, resolver, and
// ledger handles for one monitoring run.
func New(
	l *ledger.Ledger,
	d *boundary.Detector,
	r *resolver.Resolver,
	limits Limits,
	opts ...Option,
) *Engine {
	e := &Engine{
		ledger:   l,
		detector: d,
		resolver: r,
		alerter:  alert.LogAlerter{},
		reporter: LogReporter{},
		limits:   newLimitsHolder(limits),
		clock:    NewClock(),
		queue:    newEventQueue(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// SetLimits swaps the capacity and rate parameters. Takes effect from the
// next evaluation onward.
func (e *Engine) SetLimits(l Limits) {
	e.limits.set(l)
	e.logger.Info("limits updated", "max_capacity", l.MaxCapacity, "hourly_rate", l.HourlyRate)
}

// Limits returns the current operating parameters.
func (e *Engine) Limits() Limits {
	return e.limits.get()
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop() is called.
//
// Must be called from exactly ONE goroutine. All detector, resolver, and
// ledger mutation happens here.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.Process(ctx, event); err != nil {
				logEventError(e.logger, event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// A wakeup with an empty queue only means shutdown when the
			// queue is actually closed. Enqueue's buffered signal can
			// survive past the dequeue that drained it; on that stale
			// wakeup, loop back and block again.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which causes Run() to return once drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Result describes everything that happened while processing one event.
// Returned so tests and the scenario harness can assert on the exact
// sequence of effects; the Run loop only checks the error.
type Result struct {
	Seq       int64
	Identity  identity.Identity
	Crossing  boundary.Event
	Migration *resolver.MigrationResult
	Open      *ledger.OpenResult
	Close     *ledger.CloseResult
	Capacity  *alert.CapacityEvent
	Illegal   *alert.IllegalExitEvent
}

// Process handles one event synchronously. Called by the Run loop; also
// callable directly when the caller owns the sequencing (tests, harness).
func (e *Engine) Process(ctx context.Context, event Event) (Result, error) {
	switch event.Type {
	case EventTypeObservation:
		if err := validateObservation(event.Observation); err != nil {
			return Result{}, err
		}
		return e.processObservation(ctx, *event.Observation)

	case EventTypeRecognition:
		if err := validateRecognition(event.Recognition); err != nil {
			return Result{}, err
		}
		return e.processRecognition(ctx, *event.Recognition)

	default:
		return Result{}, fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// processRecognition binds an out-of-band plate result to its tracker.
func (e *Engine) processRecognition(ctx context.Context, rec Recognition) (Result, error) {
	res := Result{Seq: e.clock.Next()}

	mig, err := e.resolver.BindPlate(ctx, rec.TrackerID, rec.PlateText)
	if err != nil {
		return res, fmt.Errorf("bind plate for tracker %s: %w", rec.TrackerID, err)
	}
	res.Migration = &mig
	res.Identity = e.resolver.Resolve(rec.TrackerID)
	return res, nil
}

// processObservation runs the sequencing contract for one position sample:
//
//  1. Bind a fresh plate hint, if any.
//  2. Resolve the identity.
//  3. Feed the detector.
//  4. ENTRY: open a session; on Started evaluate capacity and alert.
//  5. EXIT: close the session; on Closed report, on NoOpenSession alert
//     the illegal exit. Boundary state was already updated by step 3, so
//     it never desynchronizes from subsequent observations.
func (e *Engine) processObservation(ctx context.Context, obs Observation) (Result, error) {
	res := Result{Seq: e.clock.Next()}

	if obs.PlateHint != "" {
		mig, err := e.resolver.BindPlate(ctx, obs.TrackerID, obs.PlateHint)
		if err != nil {
			return res, fmt.Errorf("bind plate hint for tracker %s: %w", obs.TrackerID, err)
		}
		res.Migration = &mig
	}

	id := e.resolver.Resolve(obs.TrackerID)
	res.Identity = id

	crossing := e.detector.Observe(id, obs.CY)
	res.Crossing = crossing

	switch crossing {
	case boundary.Entry:
		return e.handleEntry(ctx, res, id, obs)
	case boundary.Exit:
		return e.handleExit(ctx, res, id, obs)
	default:
		return res, nil
	}
}

func (e *Engine) handleEntry(ctx context.Context, res Result, id identity.Identity, obs Observation) (Result, error) {
	openRes, err := e.ledger.Open(ctx, id, obs.Time)
	if err != nil {
		// Durable write failed: in-memory state did not advance, but the
		// crossing was consumed. Surface distinctly from a rejection.
		return res, fmt.Errorf("open session for %s: %w", id.Key(), err)
	}
	res.Open = &openRes

	if openRes.Outcome == ledger.OpenAlreadyOpen {
		e.logger.Warn("duplicate entry ignored",
			"identity", id.Key(),
			"existing_entry", openRes.EntryTime,
		)
		return res, nil
	}

	e.logger.Info("vehicle entered", "identity", id.Key(), "time", obs.Time)

	limits := e.limits.get()
	if ev := monitor.Evaluate(e.ledger.ActiveCount(), limits.MaxCapacity, id, obs.Time); ev != nil {
		res.Capacity = ev
		if err := e.alerter.CapacityExceeded(ctx, *ev); err != nil {
			e.logger.Error("capacity alert delivery failed", "event_id", ev.ID, "error", err)
		}
	}
	return res, nil
}

func (e *Engine) handleExit(ctx context.Context, res Result, id identity.Identity, obs Observation) (Result, error) {
	limits := e.limits.get()
	closeRes, err := e.ledger.Close(ctx, id, obs.Time, limits.HourlyRate)
	if err != nil {
		return res, fmt.Errorf("close session for %s: %w", id.Key(), err)
	}
	res.Close = &closeRes

	if closeRes.Outcome == ledger.CloseNoOpenSession {
		ev := alert.IllegalExitEvent{
			ID:       alert.NewEventID(),
			Identity: id,
			Time:     obs.Time,
		}
		res.Illegal = &ev
		e.logger.Warn("illegal exit", "identity", id.Key(), "time", obs.Time)
		if err := e.alerter.IllegalExit(ctx, ev); err != nil {
			e.logger.Error("illegal exit alert delivery failed", "event_id", ev.ID, "error", err)
		}
		return res, nil
	}

	e.logger.Info("vehicle exited",
		"identity", id.Key(),
		"duration_hours", closeRes.DurationHours,
		"fare", closeRes.Fare,
	)
	if err := e.reporter.SessionClosed(ctx, id, closeRes); err != nil {
		e.logger.Error("session report delivery failed", "identity", id.Key(), "error", err)
	}
	return res, nil
}

// QueueLen returns the current number of pending events.
// Useful for monitoring and testing.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// logEventError logs an event processing failure with full context so
// operators can investigate or replay the input.
func logEventError(logger *slog.Logger, event Event, err error) {
	switch event.Type {
	case EventTypeObservation:
		if event.Observation != nil {
			logger.Error("observation processing failed",
				"error", err,
				"tracker_id", event.Observation.TrackerID,
				"cy", event.Observation.CY,
				"time", event.Observation.Time,
			)
			return
		}
		logger.Error("observation processing failed", "error", err, "note", "observation data was nil")

	case EventTypeRecognition:
		if event.Recognition != nil {
			logger.Error("recognition processing failed",
				"error", err,
				"tracker_id", event.Recognition.TrackerID,
				"plate_text", event.Recognition.PlateText,
			)
			return
		}
		logger.Error("recognition processing failed", "error", err, "note", "recognition data was nil")

	default:
		logger.Error("event processing failed", "error", err, "event_type", event.Type)
	}
}
