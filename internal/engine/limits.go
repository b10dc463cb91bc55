package engine

import "sync/atomic"

// Limits are the hot-reloadable operating parameters. They are read per
// evaluation, so the surrounding process can swap them without restarting
// the ledger or the engine.
type Limits struct {
	MaxCapacity int
	HourlyRate  float64
}

// limitsHolder publishes Limits to the engine loop with atomic swap
// semantics: readers see either the old or the new value, never a mix.
type limitsHolder struct {
	v atomic.Pointer[Limits]
}

func newLimitsHolder(l Limits) *limitsHolder {
	h := &limitsHolder{}
	h.v.Store(&l)
	return h
}

func (h *limitsHolder) get() Limits {
	return *h.v.Load()
}

func (h *limitsHolder) set(l Limits) {
	h.v.Store(&l)
}
