package sched

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/lists/arraylist"

	"cadence/internal/platform"
	"cadence/internal/task"
)

// Registry is a fixed-capacity, position-indexed collection of Trackers.
// IDs are the tracker's current index: detaching an earlier task compacts
// later ones toward the front and reassigns their IDs via OnIDUpdated.
//
// The backing arraylist.List is pre-sized to exactly capacity slots at
// construction and never grows or shrinks again; compaction rotates
// *Tracker pointers through it with Swap instead of Remove, so its
// underlying slice header never reallocates and concurrent ISR-safe reads
// by index are never racing a resize.
type Registry struct {
	mu       sync.Mutex // guards structural ops only: Attach, Detach, Clear
	trackers *arraylist.List
	capacity int
	count    atomic.Uint32
	hot      atomic.Bool
	guard    platform.Guard

	clock      platform.Clock
	sleeper    platform.IdleSleeper
	skipChecks bool
	logger     *slog.Logger
}

// RegistryOption configures optional Registry behavior.
type RegistryOption func(*Registry)

// WithSkipChecks elides bounds checks in the id-addressed hot paths. A
// caller that violates contract under this flag gets undefined behavior,
// per spec.
func WithSkipChecks(skip bool) RegistryOption {
	return func(r *Registry) { r.skipChecks = skip }
}

// WithLogger attaches the optional diagnostic sink for invalid-id
// mutations. A nil logger (the default) silently drops diagnostics.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry builds a Registry with room for exactly capacity tasks.
func NewRegistry(capacity int, clock platform.Clock, sleeper platform.IdleSleeper, opts ...RegistryOption) *Registry {
	if capacity >= int(task.InvalidID) {
		capacity = int(task.InvalidID) - 1
	}
	trackers := arraylist.New()
	for i := 0; i < capacity; i++ {
		trackers.Add(&Tracker{})
	}

	r := &Registry{
		trackers: trackers,
		capacity: capacity,
		clock:    clock,
		sleeper:  sleeper,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) trackerAt(i int) *Tracker {
	v, _ := r.trackers.Get(i)
	return v.(*Tracker)
}

// Attach registers a task, assigning it id = current count. Rejects a nil
// task, a full registry, or a task already registered.
func (r *Registry) Attach(t task.Task, period uint32, enabled bool) (task.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == nil {
		return task.InvalidID, false
	}
	n := int(r.count.Load())
	if n >= r.capacity {
		return task.InvalidID, false
	}
	if r.indexOfLocked(t) >= 0 {
		return task.InvalidID, false
	}

	tr := r.trackerAt(n)
	tr.Bind(t, period, enabled, r.clock.NowMillis())
	r.count.Store(uint32(n + 1))
	r.hot.Store(true)

	id := task.ID(n)
	t.OnIDUpdated(id)
	r.sleeper.WakeFromISR()
	return id, true
}

func (r *Registry) indexOfLocked(t task.Task) int {
	n := int(r.count.Load())
	for i := 0; i < n; i++ {
		if r.trackerAt(i).task == t {
			return i
		}
	}
	return -1
}

// Detach removes the task at id, compacting later tasks down by one index
// and notifying each of its new id in order.
func (r *Registry) Detach(id task.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int(r.count.Load())
	if int(id) >= n {
		return false
	}

	outgoing := r.trackerAt(int(id))
	outgoingTask := outgoing.task
	outgoingTask.OnIDUpdated(task.InvalidID)

	for i := int(id); i < n-1; i++ {
		r.trackers.Swap(i, i+1)
		r.trackerAt(i).task.OnIDUpdated(task.ID(i))
	}

	r.count.Store(uint32(n - 1))
	r.hot.Store(true)
	return true
}

// DetachTask looks up t's id and delegates to Detach.
func (r *Registry) DetachTask(t task.Task) bool {
	r.mu.Lock()
	id := r.indexOfLocked(t)
	r.mu.Unlock()
	if id < 0 {
		return false
	}
	return r.Detach(task.ID(id))
}

// Clear notifies every occupied task of InvalidID and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int(r.count.Load())
	for i := 0; i < n; i++ {
		r.trackerAt(i).task.OnIDUpdated(task.InvalidID)
	}
	r.count.Store(0)
	r.hot.Store(true)
}

func (r *Registry) boundsOK(id task.ID) bool {
	if r.skipChecks {
		return true
	}
	return int(id) < int(r.count.Load())
}

func (r *Registry) logInvalid(op string, id task.ID) {
	if r.skipChecks || r.logger == nil {
		return
	}
	r.logger.Warn("sched: invalid task id", "op", op, "id", id)
}

// SetPeriod is ISR-safe: it CASes the tracker at id, a no-op (with an
// optional logged diagnostic) if id is out of range.
func (r *Registry) SetPeriod(id task.ID, period uint32) {
	if !r.boundsOK(id) {
		r.logInvalid("SetPeriod", id)
		return
	}
	r.trackerAt(int(id)).SetPeriod(period)
	r.hot.Store(true)
}

// SetEnabled is ISR-safe; see SetPeriod.
func (r *Registry) SetEnabled(id task.ID, enabled bool) {
	if !r.boundsOK(id) {
		r.logInvalid("SetEnabled", id)
		return
	}
	r.trackerAt(int(id)).SetEnabled(enabled, r.clock.NowMillis())
	r.hot.Store(true)
}

// SetPeriodAndEnabled is ISR-safe; see SetPeriod.
func (r *Registry) SetPeriodAndEnabled(id task.ID, period uint32, enabled bool) {
	if !r.boundsOK(id) {
		r.logInvalid("SetPeriodAndEnabled", id)
		return
	}
	r.trackerAt(int(id)).SetPeriodAndEnabled(period, enabled, r.clock.NowMillis())
	r.hot.Store(true)
}

// WakeFromISR is the minimal-latency fast path: no logging, no lock, just
// one atomic store of the tracker state and the sleeper signal.
func (r *Registry) WakeFromISR(id task.ID) {
	if !r.boundsOK(id) {
		return
	}
	r.trackerAt(int(id)).Wake()
	r.hot.Store(true)
	r.sleeper.WakeFromISR()
}

// GetTaskID returns the id of t and whether it was found.
func (r *Registry) GetTaskID(t task.Task) (task.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.indexOfLocked(t)
	if id < 0 {
		return task.InvalidID, false
	}
	return task.ID(id), true
}

// TaskExists reports whether t is currently registered.
func (r *Registry) TaskExists(t task.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOfLocked(t) >= 0
}

// IsEnabled reports id's enabled flag, or false if id is out of range.
func (r *Registry) IsEnabled(id task.ID) bool {
	if !r.boundsOK(id) {
		return false
	}
	return r.trackerAt(int(id)).IsEnabled()
}

// GetPeriod returns id's period, or math.MaxUint32 if id is out of range.
func (r *Registry) GetPeriod(id task.ID) uint32 {
	if !r.boundsOK(id) {
		return math.MaxUint32
	}
	return r.trackerAt(int(id)).Period()
}

// GetTaskCount returns the number of occupied slots.
func (r *Registry) GetTaskCount() uint8 {
	return uint8(r.count.Load())
}

// TimeUntilNextRun returns the minimum TimeUntilNextRun across all occupied
// trackers, exiting early once it finds a tracker reporting 1ms or less.
func (r *Registry) TimeUntilNextRun(now uint32) uint32 {
	n := int(r.count.Load())
	min := uint32(math.MaxUint32)
	for i := 0; i < n; i++ {
		next := r.trackerAt(i).TimeUntilNextRun(now)
		if next < min {
			min = next
		}
		if min <= 1 {
			break
		}
	}
	return min
}

// AdvanceTimestamp subtracts offset from every tracker's lastRun, to
// compensate for a deep-sleep interval the core did not observe. Unsigned
// subtraction wraps if offset > lastRun; this mirrors the unsigned-elapsed
// model used everywhere else and is left unclamped deliberately.
func (r *Registry) AdvanceTimestamp(offsetMs uint32) {
	r.guard.Lock()
	defer r.guard.Unlock()

	n := int(r.count.Load())
	for i := 0; i < n; i++ {
		tr := r.trackerAt(i)
		tr.lastRun.Store(tr.lastRun.Load() - offsetMs)
	}
}
