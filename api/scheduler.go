/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Runs the reconciliation sweep on a cron schedule (default: midnight UTC
  daily) and on demand, and records every cycle in the run history.

DESIGN:
  - robfig/cron drives the trigger, evaluated in UTC
  - One cycle at a time per process (TryLock); an overlapping trigger is
    recorded as "skipped"
  - With a Redis Locker configured, a cycle must also win the shared
    lease, so replicas never sweep concurrently. The lease is extended
    every TTL/3 while the cycle runs
  - A cycle ignores cancellation of the caller's context and always runs
    to completion
  - Per-entity failures are in the run's report; only a systemic failure
    (candidate lists not loadable) marks the run "failed"

CONFIGURATION:
  - Spec:       cron expression (default "0 0 * * *")
  - Enabled:    whether Start schedules anything
  - RunOnStart: run one cycle immediately on Start

USAGE:
  scheduler := NewReconciliationScheduler(svc, runs, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - timeline/sweep.go: the sweep itself
  - handlers.go: TriggerReconciliation endpoint (manual run)
  - store/redislock: cross-instance lease
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/timeline-engine/config"
	"github.com/warp/timeline-engine/logx"
	"github.com/warp/timeline-engine/store/redislock"
	"github.com/warp/timeline-engine/timeline"
)

// Sweep run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// Sweep run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// DefaultSweepSpec runs the sweep once a day at midnight UTC.
const DefaultSweepSpec = "0 0 * * *"

// ReconciliationScheduler handles automated status reconciliation.
type ReconciliationScheduler struct {
	Service    *timeline.Service
	Runs       timeline.RunStore
	Locker     *redislock.Locker // nil: single instance, no lease
	Spec       string
	Enabled    bool
	RunOnStart bool

	log     zerolog.Logger
	cron    *cron.Cron
	running sync.Mutex // held for the duration of one cycle
	mu      sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(svc *timeline.Service, runs timeline.RunStore, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Service: svc,
		Runs:    runs,
		Spec:    DefaultSweepSpec,
		Enabled: true,
		log:     logx.Component(log, "scheduler"),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New(cron.WithParser(config.CronParser), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(rs.Spec, func() {
		rs.RunNow(context.Background(), TriggerScheduled)
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", rs.Spec, err)
	}
	c.Start()
	rs.cron = c

	rs.log.Info().
		Str("spec", rs.Spec).
		Time("next_run", rs.GetNextRunTime()).
		Bool("distributed", rs.Locker != nil).
		Msg("started")

	if rs.RunOnStart {
		go rs.RunNow(context.Background(), TriggerStartup)
	}
	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	// A startup or manual run is not tracked by cron.
	rs.running.Lock()
	rs.running.Unlock()
	rs.log.Info().Msg("stopped")
}

// RunNow runs one cycle immediately and returns its record. Values of ctx
// (request ID etc.) are kept but its cancellation is not.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context, trigger string) timeline.SweepRun {
	ctx = context.WithoutCancel(ctx)
	run := timeline.SweepRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    RunRunning,
		StartedAt: rs.Service.Now(),
	}

	if !rs.running.TryLock() {
		return rs.finishSkipped(ctx, run, "a sweep is already running in this process")
	}
	defer rs.running.Unlock()

	if rs.Locker != nil {
		lease, err := rs.Locker.Acquire(ctx)
		if err != nil {
			return rs.finish(ctx, run, timeline.SweepReport{}, err)
		}
		if lease == nil {
			return rs.finishSkipped(ctx, run, "another instance holds the sweep lease")
		}
		defer func() {
			if err := lease.Release(ctx); err != nil {
				rs.log.Warn().Err(err).Msg("release sweep lease")
			}
		}()
		stop := rs.keepLease(ctx, lease)
		defer stop()
	}

	rs.save(ctx, run)
	report, err := rs.Service.RunReconciliationSweep(ctx, run.StartedAt)
	return rs.finish(ctx, run, report, err)
}

// GetNextRunTime returns when the next scheduled cycle will occur.
func (rs *ReconciliationScheduler) GetNextRunTime() time.Time {
	sched, err := config.CronParser.Parse(rs.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(rs.Service.Now())
}

// keepLease extends lease every TTL/3 until the returned stop is called.
// A failed extension is logged and ends the heartbeat; the sweep carries on.
func (rs *ReconciliationScheduler) keepLease(ctx context.Context, lease *redislock.Lease) (stop func()) {
	ttl := lease.TTL()
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lease.Extend(ctx, ttl); err != nil {
					rs.log.Warn().Err(err).Str("key", lease.Key()).Msg("extend sweep lease")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (rs *ReconciliationScheduler) finish(ctx context.Context, run timeline.SweepRun, report timeline.SweepReport, err error) timeline.SweepRun {
	completed := rs.Service.Now()
	run.CompletedAt = &completed
	run.Report = report
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		rs.log.Error().Err(err).Str("run_id", run.ID).Str("trigger", run.Trigger).Msg("sweep failed")
	} else {
		run.Status = RunCompleted
		rs.log.Info().
			Str("run_id", run.ID).
			Str("trigger", run.Trigger).
			Int("delayed", report.DelayedCount).
			Int("reverted", report.RevertedCount).
			Int("failures", len(report.Failures)).
			Dur("took", completed.Sub(run.StartedAt)).
			Msg("sweep completed")
	}
	rs.save(ctx, run)
	return run
}

func (rs *ReconciliationScheduler) finishSkipped(ctx context.Context, run timeline.SweepRun, reason string) timeline.SweepRun {
	completed := rs.Service.Now()
	run.Status = RunSkipped
	run.CompletedAt = &completed
	run.Error = reason
	rs.log.Info().Str("trigger", run.Trigger).Str("reason", reason).Msg("sweep skipped")
	rs.save(ctx, run)
	return run
}

func (rs *ReconciliationScheduler) save(ctx context.Context, run timeline.SweepRun) {
	if rs.Runs == nil {
		return
	}
	if err := rs.Runs.SaveSweepRun(ctx, run); err != nil {
		rs.log.Error().Err(err).Str("run_id", run.ID).Msg("record sweep run")
	}
}
