package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron cadences for the five named triggers (§4.5), all UTC five-field
// expressions parsed by robfig/cron/v3.
const (
	CronHighValue         = "0 */6 * * *"
	CronActive            = "0 2 * * *"
	CronDormant           = "0 3 * * 0"
	CronRemediationSweep  = "0 20 * * 5"
	CronBillingSweep      = "0 4 * * *"
)

// Runner wraps a robfig/cron/v3.Cron configured with UTC parsing and
// schedules every named trigger against a Scheduler. Grounded on the
// teacher's pkg/job/manager.go cron-adapter shape, generalized from one
// periodic job runner to five named cohort/sweep triggers.
type Runner struct {
	cron      *cron.Cron
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewRunner builds a Runner bound to scheduler.
func NewRunner(scheduler *Scheduler, logger *slog.Logger) *Runner {
	c := cron.New(cron.WithLocation(time.UTC))
	return &Runner{cron: c, scheduler: scheduler, logger: logger}
}

// Start registers all five triggers and starts the cron loop in its own
// goroutine (cron.Cron's default async run mode).
func (r *Runner) Start(ctx context.Context) error {
	entries := []struct {
		expr string
		fn   func(context.Context, time.Time) error
	}{
		{CronHighValue, func(ctx context.Context, now time.Time) error { return r.scheduler.FireCohort(ctx, CohortHighValue, now) }},
		{CronActive, func(ctx context.Context, now time.Time) error { return r.scheduler.FireCohort(ctx, CohortActive, now) }},
		{CronDormant, func(ctx context.Context, now time.Time) error { return r.scheduler.FireCohort(ctx, CohortDormant, now) }},
		{CronRemediationSweep, r.scheduler.FireRemediationSweep},
		{CronBillingSweep, r.scheduler.FireBillingSweep},
	}

	for _, e := range entries {
		fn := e.fn
		if _, err := r.cron.AddFunc(e.expr, func() {
			if err := fn(ctx, time.Now()); err != nil {
				r.log().ErrorContext(ctx, "scheduled trigger failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	r.cron.Start()
	return nil
}

// Stop blocks until any in-flight trigger invocation completes.
func (r *Runner) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
}

func (r *Runner) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
