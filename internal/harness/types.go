package harness

// Trace event types.
const (
	TraceEntry          = "entry"
	TraceDuplicateEntry = "duplicate_entry"
	TraceExit           = "exit"
	TraceIllegalExit    = "illegal_exit"
	TraceCapacityAlert  = "capacity_alert"
	TraceMigration      = "migration"
)

// TraceEvent is one observable effect of processing a scenario event.
// Seq is the engine's logical sequence number for the input that produced
// it; an input with several effects (entry plus capacity alert) yields
// several trace events sharing one seq.
type TraceEvent struct {
	Seq           int64   `json:"seq"`
	Type          string  `json:"type"`
	Identity      string  `json:"identity,omitempty"`
	Plate         string  `json:"plate,omitempty"`
	DurationHours float64 `json:"duration_hours,omitempty"`
	Fare          float64 `json:"fare,omitempty"`
	Count         int     `json:"count,omitempty"`
	Max           int     `json:"max,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Trace contains every effect in processing order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends one effect to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
