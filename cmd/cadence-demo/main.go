package main

import (
	"context"
	"fmt"
	"time"

	"cadence/internal/job"
	"cadence/internal/platform"
	"cadence/internal/sched"
)

func main() {
	cfg := sched.Load("config.yml")
	fmt.Printf("Loaded config: %+v\n", cfg)

	clock := platform.NewSystemClock()
	tick := time.Duration(cfg.TickMS) * time.Millisecond

	var sleeper platform.IdleSleeper
	if cfg.HostedSleeper {
		sleeper = platform.NewSemaphoreSleeper(tick)
	} else {
		sleeper = platform.NewTickSleeper(tick)
	}

	registry := sched.NewRegistry(cfg.MaxTaskCount, clock, sleeper, sched.WithSkipChecks(cfg.SkipChecks))
	scheduler := sched.New(registry, clock, sleeper, cfg.IdleSleepEnabled)

	var beats int64
	heartbeat := job.Counter(&beats)
	if id, ok := registry.Attach(heartbeat, 250, true); ok {
		fmt.Printf("attached heartbeat task with id %d\n", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for ctx.Err() == nil {
		scheduler.LoopOnce(ctx)
	}

	fmt.Printf("heartbeat ran %d times\n", beats)
}
