package sched

import (
	"context"
	"math"
	"sync/atomic"

	"cadence/internal/task"
)

// state packs {enabled, period} into one word so a single atomic load or
// compare-and-swap always observes a consistent pair, never a torn view
// where one field reflects an ISR write and the other a stale value.
type state uint64

func packState(enabled bool, period uint32) state {
	var e uint64
	if enabled {
		e = 1
	}
	return state(e | uint64(period)<<32)
}

func (s state) enabled() bool  { return s&1 != 0 }
func (s state) period() uint32 { return uint32(s >> 32) }

// Tracker holds per-task scheduling state: a reference to the task, its
// period, its last-run marker, and whether it is currently eligible to run.
//
// lastRun is promoted to atomic.Uint32 even though the spec models it as
// single-writer (main-loop only): SetEnabled's disabled->enabled refresh is
// itself an ISR-safe call, and a hosted Go port has no single-core-ISR
// guarantee to fall back on for that write. See DESIGN.md.
type Tracker struct {
	task    task.Task
	state   atomic.Uint64
	lastRun atomic.Uint32
}

// Bind sets all fields, storing the packed {enabled, period} state last. If
// enabled, lastRun is set to now so a freshly enabled task with a large
// period does not fire immediately; if not, lastRun is left as it was.
func (t *Tracker) Bind(tk task.Task, period uint32, enabled bool, now uint32) {
	t.task = tk
	if enabled {
		t.lastRun.Store(now)
	}
	t.state.Store(uint64(packState(enabled, period)))
}

// SetPeriod atomically writes the period, leaving enabled untouched.
func (t *Tracker) SetPeriod(period uint32) {
	for {
		old := state(t.state.Load())
		next := packState(old.enabled(), period)
		if t.state.CompareAndSwap(uint64(old), uint64(next)) {
			return
		}
	}
}

// SetEnabled atomically writes enabled. A false->true transition refreshes
// lastRun to now.
func (t *Tracker) SetEnabled(enabled bool, now uint32) {
	for {
		old := state(t.state.Load())
		next := packState(enabled, old.period())
		if t.state.CompareAndSwap(uint64(old), uint64(next)) {
			if enabled && !old.enabled() {
				t.lastRun.Store(now)
			}
			return
		}
	}
}

// SetPeriodAndEnabled atomically writes both fields together, applying the
// same false->true refresh rule as SetEnabled.
func (t *Tracker) SetPeriodAndEnabled(period uint32, enabled bool, now uint32) {
	for {
		old := state(t.state.Load())
		next := packState(enabled, period)
		if t.state.CompareAndSwap(uint64(old), uint64(next)) {
			if enabled && !old.enabled() {
				t.lastRun.Store(now)
			}
			return
		}
	}
}

// Wake is the fast path from ISR context: period=0, enabled=true. It does
// not refresh lastRun — period 0 always satisfies the due predicate
// regardless of lastRun, so the refresh would be wasted work on the
// fastest-path call in the whole API.
func (t *Tracker) Wake() {
	t.state.Store(uint64(packState(true, 0)))
}

// IsEnabled atomically reads the enabled flag.
func (t *Tracker) IsEnabled() bool {
	return state(t.state.Load()).enabled()
}

// Period atomically reads the period.
func (t *Tracker) Period() uint32 {
	return state(t.state.Load()).period()
}

// TimeUntilNextRun returns 0 if enabled and due, period-(now-lastRun) if
// enabled and not yet due, or math.MaxUint32 if disabled.
func (t *Tracker) TimeUntilNextRun(now uint32) uint32 {
	s := state(t.state.Load())
	if !s.enabled() {
		return math.MaxUint32
	}
	period := s.period()
	if period == 0 {
		return 0
	}
	elapsed := now - t.lastRun.Load()
	if elapsed > period {
		return 0
	}
	return period - elapsed
}

// RunIfDue is the core algorithm: strict late-bias due predicate, task
// invocation, and phase-locked-with-catch-up last-run update. It surfaces
// no errors of its own; a Run that returns an error or blocks is the
// caller's problem, per spec.
func (t *Tracker) RunIfDue(ctx context.Context, now uint32) bool {
	s := state(t.state.Load())
	if !s.enabled() {
		return false
	}

	period := s.period()
	last := t.lastRun.Load()
	elapsed := now - last

	if period != 0 && elapsed <= period {
		return false
	}

	_ = t.task.Run(ctx)

	// Phase-locked cadence, with catch-up resync when the scheduler fell
	// more than 2x period behind: resyncing to now avoids a burst of rapid
	// catch-up firings after a long blocking section.
	if period > 1 && (elapsed>>1) > period {
		t.lastRun.Store(now)
	} else {
		t.lastRun.Store(last + period)
	}
	return true
}
