package sched

import (
	"context"
	"math"
	"testing"

	"cadence/internal/platform"
	"cadence/internal/task"
)

type idTrackingTask struct {
	countingTask
	id task.ID
}

func (t *idTrackingTask) OnIDUpdated(id task.ID) { t.id = id }

func newRegistry(capacity int) (*Registry, *platform.ManualClock) {
	clock := &platform.ManualClock{}
	sleeper := platform.NewTickSleeper(1)
	return NewRegistry(capacity, clock, sleeper), clock
}

func TestRegistryAttachAssignsPositionalID(t *testing.T) {
	r, _ := newRegistry(4)
	a := &idTrackingTask{}

	id, ok := r.Attach(a, 0, true)
	if !ok {
		t.Fatal("Attach failed")
	}
	if id != 0 || a.id != 0 {
		t.Fatalf("first attach id = %d (callback saw %d), want 0", id, a.id)
	}
	if got, ok := r.GetTaskID(a); !ok || got != 0 {
		t.Fatalf("GetTaskID = (%d, %v), want (0, true)", got, ok)
	}
}

func TestRegistryRejectsNilDuplicateAndFull(t *testing.T) {
	r, _ := newRegistry(1)
	a := &idTrackingTask{}

	if _, ok := r.Attach(nil, 0, true); ok {
		t.Fatal("Attach(nil) should fail")
	}
	if _, ok := r.Attach(a, 0, true); !ok {
		t.Fatal("first Attach should succeed")
	}
	if _, ok := r.Attach(a, 0, true); ok {
		t.Fatal("duplicate Attach of the same task should fail")
	}

	b := &idTrackingTask{}
	if _, ok := r.Attach(b, 0, true); ok {
		t.Fatal("Attach beyond capacity should fail")
	}
}

func TestRegistryDetachCompaction(t *testing.T) {
	r, _ := newRegistry(4)
	a := &idTrackingTask{}
	b := &idTrackingTask{}
	c := &idTrackingTask{}

	r.Attach(a, 0, true)
	r.Attach(b, 0, true)
	r.Attach(c, 0, true)

	if !r.Detach(0) {
		t.Fatal("Detach(0) failed")
	}

	if a.id != task.InvalidID {
		t.Fatalf("detached task's id = %d, want InvalidID", a.id)
	}
	if b.id != 0 {
		t.Fatalf("b.id after compaction = %d, want 0", b.id)
	}
	if c.id != 1 {
		t.Fatalf("c.id after compaction = %d, want 1", c.id)
	}
	if got := r.GetTaskCount(); got != 2 {
		t.Fatalf("GetTaskCount = %d, want 2", got)
	}

	if id, ok := r.GetTaskID(b); !ok || id != 0 {
		t.Fatalf("GetTaskID(b) = (%d, %v), want (0, true)", id, ok)
	}
	if id, ok := r.GetTaskID(c); !ok || id != 1 {
		t.Fatalf("GetTaskID(c) = (%d, %v), want (1, true)", id, ok)
	}
}

func TestRegistryAttachDetachRoundTrip(t *testing.T) {
	r, _ := newRegistry(4)
	a := &idTrackingTask{}

	r.Attach(a, 0, true)
	if !r.DetachTask(a) {
		t.Fatal("DetachTask failed")
	}
	if got := r.GetTaskCount(); got != 0 {
		t.Fatalf("GetTaskCount after round trip = %d, want 0", got)
	}
	if r.TaskExists(a) {
		t.Fatal("task should no longer exist after detach")
	}
}

func TestRegistryClearIsIdempotent(t *testing.T) {
	r, _ := newRegistry(4)
	a := &idTrackingTask{}
	r.Attach(a, 0, true)

	r.Clear()
	if got := r.GetTaskCount(); got != 0 {
		t.Fatalf("GetTaskCount after first Clear = %d, want 0", got)
	}
	r.Clear()
	if got := r.GetTaskCount(); got != 0 {
		t.Fatalf("GetTaskCount after second Clear = %d, want 0", got)
	}
}

func TestRegistryWakeFromISRObservedNextTick(t *testing.T) {
	r, clock := newRegistry(4)
	a := &idTrackingTask{}
	id, _ := r.Attach(a, 12345679, false)

	r.WakeFromISR(id)

	if !r.IsEnabled(id) {
		t.Fatal("expected enabled after WakeFromISR")
	}
	if got := r.GetPeriod(id); got != 0 {
		t.Fatalf("GetPeriod after WakeFromISR = %d, want 0", got)
	}

	tr := r.trackerAt(int(id))
	if !tr.RunIfDue(context.Background(), clock.NowMillis()) {
		t.Fatal("tracker should be due immediately after WakeFromISR")
	}
}

func TestRegistryInvalidIDQueriesReturnSentinels(t *testing.T) {
	r, _ := newRegistry(2)
	if got := r.GetPeriod(task.ID(5)); got != math.MaxUint32 {
		t.Fatalf("GetPeriod(out-of-range) = %d, want MaxUint32", got)
	}
	if r.IsEnabled(task.ID(5)) {
		t.Fatal("IsEnabled(out-of-range) should be false")
	}
	if r.Detach(task.ID(5)) {
		t.Fatal("Detach(out-of-range) should fail")
	}
}

func TestRegistryAdvanceTimestamp(t *testing.T) {
	r, clock := newRegistry(2)
	clock.Set(1000)
	a := &idTrackingTask{}
	id, _ := r.Attach(a, 100, true)

	r.AdvanceTimestamp(400)

	tr := r.trackerAt(int(id))
	if got := tr.lastRun.Load(); got != 600 {
		t.Fatalf("lastRun after AdvanceTimestamp(400) = %d, want 600", got)
	}
}

func TestRegistryTimeUntilNextRunIsMinimumAcrossTrackers(t *testing.T) {
	r, clock := newRegistry(3)
	clock.Set(0)

	a := &idTrackingTask{}
	b := &idTrackingTask{}
	r.Attach(a, 100, true)
	r.Attach(b, 30, true)

	if got := r.TimeUntilNextRun(0); got != 30 {
		t.Fatalf("TimeUntilNextRun = %d, want 30 (the sooner of the two trackers)", got)
	}
}
