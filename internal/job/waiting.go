// Package job holds demo task bodies: Counter, used by cmd/cadence-demo, and
// SleepWork, a task that can be made to overrun its period on command.
package job

import (
	"context"
	"time"

	"cadence/internal/task"
)

// SleepWork returns a task.Task that blocks for the given duration before
// returning. Attached with a short period, it is the natural way to
// manufacture the catch-up-resync scenario: a run that overruns its own
// period inflates the scheduler's apparent elapsed time for its next check.
func SleepWork(d time.Duration) task.Task {
	return task.New(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	})
}

// Counter returns a task.Task that increments *n every time it runs. Used
// as the minimal non-blocking demo workload.
func Counter(n *int64) task.Task {
	return task.New(func(ctx context.Context) error {
		*n++
		return nil
	})
}
