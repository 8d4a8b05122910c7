// Package task defines the capability contract the scheduler core depends
// on: anything that can Run and can accept an id-updated notification.
package task

import "context"

// ID identifies a task by its current position in a registry. It is not
// stable across detachment of an earlier task: compaction reassigns it.
type ID uint8

// InvalidID marks "not registered". MAX_TASK_COUNT must stay below it.
const InvalidID ID = 255

// Task is the abstraction the scheduler core depends on. Implementations
// must return promptly from Run; the core never recovers from a Run that
// blocks or panics.
type Task interface {
	// Run executes the task's work for one due tick.
	Run(ctx context.Context) error

	// OnIDUpdated is invoked by the registry whenever this task's id
	// changes: on attach (with the assigned id), on a detach of an earlier
	// task that compacts this one to a new index, and on detach/clear of
	// this task itself (with InvalidID). Implementations that call back
	// into id-addressed mutators must store the latest value; others may
	// ignore it.
	OnIDUpdated(id ID)
}

// Func adapts a plain function into a Task, collapsing the various
// callable/wrapper task shapes into one adapter plus a constructor.
type Func struct {
	RunFunc func(ctx context.Context) error
	IDFunc  func(id ID)
}

// New builds a Task from a run function with no interest in its id.
func New(run func(ctx context.Context) error) *Func {
	return &Func{RunFunc: run}
}

// NewWithID builds a Task that also wants to track its assigned id, e.g. to
// call back into id-addressed registry mutators from its own run body.
func NewWithID(run func(ctx context.Context) error, onID func(id ID)) *Func {
	return &Func{RunFunc: run, IDFunc: onID}
}

func (f *Func) Run(ctx context.Context) error {
	return f.RunFunc(ctx)
}

func (f *Func) OnIDUpdated(id ID) {
	if f.IDFunc != nil {
		f.IDFunc(id)
	}
}
