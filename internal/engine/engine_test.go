package engine

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/boundary"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/resolver"
)

const (
	lineY  = 240.0
	margin = 15.0
	above  = 100.0
	below  = 400.0
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// recordingAlerter captures alert events for assertions.
type recordingAlerter struct {
	mu       sync.Mutex
	capacity []alert.CapacityEvent
	illegal  []alert.IllegalExitEvent
}

func (r *recordingAlerter) CapacityExceeded(_ context.Context, ev alert.CapacityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = append(r.capacity, ev)
	return nil
}

func (r *recordingAlerter) IllegalExit(_ context.Context, ev alert.IllegalExitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.illegal = append(r.illegal, ev)
	return nil
}

// recordingReporter captures completed-session records.
type recordingReporter struct {
	mu     sync.Mutex
	closed []ledger.CloseResult
}

func (r *recordingReporter) SessionClosed(_ context.Context, _ identity.Identity, res ledger.CloseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, res)
	return nil
}

type fixture struct {
	engine   *Engine
	ledger   *ledger.Ledger
	alerter  *recordingAlerter
	reporter *recordingReporter
}

func newFixture(t *testing.T, limits Limits) *fixture {
	t.Helper()

	l, err := ledger.Open(filepath.Join(t.TempDir(), "parking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Shutdown() })

	d := boundary.NewDetector(lineY, margin)
	r := resolver.New(identity.MustGrammar(identity.DefaultPlateGrammar), l, d, nil)

	al := &recordingAlerter{}
	rep := &recordingReporter{}
	e := New(l, d, r, limits, WithAlerter(al), WithReporter(rep))

	return &fixture{engine: e, ledger: l, alerter: al, reporter: rep}
}

// drive feeds one tracker across the line: baseline sample then crossing.
func (f *fixture) enter(t *testing.T, trackerID string, at time.Time) Result {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: trackerID, CY: above, Time: at}))
	require.NoError(t, err)
	res, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: trackerID, CY: below, Time: at}))
	require.NoError(t, err)
	return res
}

func (f *fixture) exit(t *testing.T, trackerID string, at time.Time) Result {
	t.Helper()
	res, err := f.engine.Process(context.Background(),
		ObservationEvent(Observation{TrackerID: trackerID, CY: above, Time: at}))
	require.NoError(t, err)
	return res
}

func TestProcess_EntryOpensSession(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})

	res := f.enter(t, "a", baseTime)

	assert.Equal(t, boundary.Entry, res.Crossing)
	require.NotNil(t, res.Open)
	assert.Equal(t, ledger.OpenStarted, res.Open.Outcome)
	assert.Equal(t, 1, f.ledger.ActiveCount())
	assert.Nil(t, res.Capacity, "within capacity")
}

func TestProcess_EndToEndScenario(t *testing.T) {
	// maxCapacity=2, rate=50: third entry breaches capacity; an exit for a
	// never-entered vehicle is illegal; a 45-minute stay bills one hour.
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})

	f.enter(t, "a", baseTime)
	f.enter(t, "b", baseTime.Add(time.Minute))
	res := f.enter(t, "c", baseTime.Add(2*time.Minute))

	require.NotNil(t, res.Capacity)
	assert.Equal(t, 3, res.Capacity.Count)
	assert.Equal(t, 2, res.Capacity.Max)
	assert.Equal(t, identity.FromTracker("c"), res.Capacity.Identity)
	require.Len(t, f.alerter.capacity, 1)

	// EXIT for d, which never entered: baseline below, then cross above.
	ctx := context.Background()
	_, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "d", CY: below, Time: baseTime}))
	require.NoError(t, err)
	resD, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "d", CY: above, Time: baseTime.Add(3 * time.Minute)}))
	require.NoError(t, err)

	assert.Equal(t, boundary.Exit, resD.Crossing)
	require.NotNil(t, resD.Close)
	assert.Equal(t, ledger.CloseNoOpenSession, resD.Close.Outcome)
	require.NotNil(t, resD.Illegal)
	require.Len(t, f.alerter.illegal, 1)
	assert.Equal(t, identity.FromTracker("d"), f.alerter.illegal[0].Identity)

	// a exits 45 minutes after entry: one billed hour.
	resA := f.exit(t, "a", baseTime.Add(45*time.Minute))
	require.NotNil(t, resA.Close)
	assert.Equal(t, ledger.CloseClosed, resA.Close.Outcome)
	assert.InDelta(t, 0.75, resA.Close.DurationHours, 1e-9)
	assert.Equal(t, 50.0, resA.Close.Fare)
	require.Len(t, f.reporter.closed, 1)

	assert.Equal(t, 2, f.ledger.ActiveCount())
}

func TestProcess_DuplicateEntryNoAlert(t *testing.T) {
	// The session is already open in the ledger (left over from before a
	// process restart) while the detector's in-memory state starts fresh.
	// The re-observed crossing produces a second ENTRY signal, which must
	// not double-count or re-alert.
	f := newFixture(t, Limits{MaxCapacity: 0, HourlyRate: 50})
	ctx := context.Background()

	openRes, err := f.ledger.Open(ctx, identity.FromTracker("a"), baseTime)
	require.NoError(t, err)
	require.Equal(t, ledger.OpenStarted, openRes.Outcome)

	res := f.enter(t, "a", baseTime.Add(time.Minute))

	require.NotNil(t, res.Open)
	assert.Equal(t, ledger.OpenAlreadyOpen, res.Open.Outcome)
	assert.Equal(t, baseTime, res.Open.EntryTime, "existing entry preserved")
	assert.Nil(t, res.Capacity, "AlreadyOpen never evaluates capacity")
	assert.Empty(t, f.alerter.capacity, "AlreadyOpen never alerts")
	assert.Equal(t, 1, f.ledger.ActiveCount(), "duplicate entry never double-counts")
}

func TestProcess_LatePlateMigration(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})
	ctx := context.Background()

	// Vehicle enters under its tracker identity.
	f.enter(t, "7", baseTime)
	require.Equal(t, 1, f.ledger.ActiveCount())

	// Recognition arrives later, out of band.
	res, err := f.engine.Process(ctx, RecognitionEvent(Recognition{TrackerID: "7", PlateText: "AB 12345"}))
	require.NoError(t, err)
	require.NotNil(t, res.Migration)
	assert.Equal(t, resolver.MigrationMigrated, res.Migration.Outcome)
	assert.Equal(t, identity.FromPlate("AB12345"), res.Identity)

	// Exit under the plate: one row, entry time preserved.
	resExit := f.exit(t, "7", baseTime.Add(30*time.Minute))
	require.NotNil(t, resExit.Close)
	assert.Equal(t, ledger.CloseClosed, resExit.Close.Outcome)
	assert.Equal(t, baseTime, resExit.Close.EntryTime)

	sessions, err := f.ledger.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "AB12345", sessions[0].Identity)
}

func TestProcess_PlateHintBoundBeforeObservation(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})
	ctx := context.Background()

	// First observation carries a plate hint: baseline lands under the
	// plate identity directly.
	res, err := f.engine.Process(ctx, ObservationEvent(Observation{
		TrackerID: "9", CY: above, Time: baseTime, PlateHint: "CD67890",
	}))
	require.NoError(t, err)
	assert.Equal(t, identity.FromPlate("CD67890"), res.Identity)

	res, err = f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "9", CY: below, Time: baseTime}))
	require.NoError(t, err)
	require.NotNil(t, res.Open)
	assert.Equal(t, ledger.OpenStarted, res.Open.Outcome)
	assert.True(t, f.ledger.HasOpenSession(identity.FromPlate("CD67890")))
}

func TestProcess_ReentryAfterIllegalExit(t *testing.T) {
	// A vehicle that exits without a matched entry is alert-only; its
	// later re-entry is treated normally.
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})
	ctx := context.Background()

	_, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "x", CY: below, Time: baseTime}))
	require.NoError(t, err)
	res, err := f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "x", CY: above, Time: baseTime.Add(time.Minute)}))
	require.NoError(t, err)
	require.NotNil(t, res.Illegal)

	// Re-entry opens a session normally.
	res, err = f.engine.Process(ctx, ObservationEvent(Observation{TrackerID: "x", CY: below, Time: baseTime.Add(2 * time.Minute)}))
	require.NoError(t, err)
	assert.Equal(t, boundary.Entry, res.Crossing)
	require.NotNil(t, res.Open)
	assert.Equal(t, ledger.OpenStarted, res.Open.Outcome)
}

func TestProcess_MalformedInputRejected(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})
	ctx := context.Background()

	tests := []struct {
		name  string
		event Event
	}{
		{"missing tracker id", ObservationEvent(Observation{CY: above, Time: baseTime})},
		{"nan position", ObservationEvent(Observation{TrackerID: "a", CY: math.NaN(), Time: baseTime})},
		{"inf position", ObservationEvent(Observation{TrackerID: "a", CY: math.Inf(1), Time: baseTime})},
		{"zero time", ObservationEvent(Observation{TrackerID: "a", CY: above})},
		{"nil observation", Event{Type: EventTypeObservation}},
		{"recognition missing tracker", RecognitionEvent(Recognition{PlateText: "AB12345"})},
		{"recognition missing plate", RecognitionEvent(Recognition{TrackerID: "a"})},
		{"nil recognition", Event{Type: EventTypeRecognition}},
		{"unknown type", Event{Type: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Process(ctx, tt.event)
			require.Error(t, err)
		})
	}

	// Nothing reached the state machines.
	assert.Equal(t, 0, f.ledger.ActiveCount())
}

func TestSetLimits_HotReload(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 1, HourlyRate: 50})

	f.enter(t, "a", baseTime)
	require.Empty(t, f.alerter.capacity, "1/1 is at capacity, not over")

	// Raise the rate and capacity mid-run.
	f.engine.SetLimits(Limits{MaxCapacity: 1, HourlyRate: 100})

	f.enter(t, "b", baseTime.Add(time.Minute))
	require.Len(t, f.alerter.capacity, 1, "2/1 breaches")

	// Exit bills with the new rate.
	res := f.exit(t, "a", baseTime.Add(10*time.Minute))
	require.NotNil(t, res.Close)
	assert.Equal(t, 100.0, res.Close.Fare)
}

func TestRun_ProcessesEnqueuedEvents(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.True(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: above, Time: baseTime})))
	require.True(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: below, Time: baseTime})))

	require.Eventually(t, func() bool {
		return f.ledger.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// Engine stopped: enqueue is refused.
	assert.False(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "b", CY: above, Time: baseTime})))
}

func TestRun_StaleSignalKeepsLoopAlive(t *testing.T) {
	// Enqueue before Run starts so the coalesced wakeup signal outlives
	// the dequeues that drain the queue. The stale wakeup must not stop
	// the loop: later events are still accepted and processed, and only
	// cancellation ends the run.
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})

	require.True(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: above, Time: baseTime})))
	require.True(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: below, Time: baseTime})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.ledger.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Queue drained but not closed: the loop must still be running.
	require.True(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: above, Time: baseTime.Add(30 * time.Minute)})))
	require.Eventually(t, func() bool {
		return f.ledger.ActiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("run loop stopped without cancellation: %v", err)
	default:
	}

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "b", CY: above, Time: baseTime})))
}

func TestRun_MalformedEventLoggedAndSkipped(t *testing.T) {
	f := newFixture(t, Limits{MaxCapacity: 2, HourlyRate: 50})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	// Bad event first, then a good pair: processing continues.
	f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "", CY: above, Time: baseTime}))
	f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: above, Time: baseTime}))
	f.engine.Enqueue(ObservationEvent(Observation{TrackerID: "a", CY: below, Time: baseTime}))

	require.Eventually(t, func() bool {
		return f.ledger.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
