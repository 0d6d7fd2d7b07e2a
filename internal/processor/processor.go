// Package processor claims due jobs and runs their per-type handler under a
// per-job timeout and a savepoint-scoped transaction (SPEC_FULL.md §4.3).
//
// Grounded on original_source/app/services/jobs/processor.py's
// process_pending_jobs coroutine, re-expressed with claim-and-transition
// fused into one SQL statement (jobstore.Store.ClaimDue) and handler
// isolation via a real Postgres savepoint (internal/storage/pg.WithSavepoint)
// instead of the source's nested-transaction-by-convention pattern.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudledger/jobcore/internal/handler"
	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/storage/pg"
	"github.com/cloudledger/jobcore/internal/telemetry"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// DefaultJobTimeout is used when Processor.JobTimeout is zero.
const DefaultJobTimeout = 300 * time.Second

// BatchResult is the outcome of one ProcessDueBatch invocation.
type BatchResult struct {
	Claimed    int
	Succeeded  int
	Failed     int
	BatchError error
}

// Processor claims and executes due jobs.
type Processor struct {
	Store      *jobstore.Store
	Pool       *pgxpool.Pool
	Registry   *handler.Registry
	Metrics    *telemetry.Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
	JobTimeout time.Duration
	RLSMetrics *tenant.RLSMetrics
}

// New constructs a Processor. tracer may be nil to skip span creation.
func New(store *jobstore.Store, pool *pgxpool.Pool, registry *handler.Registry, metrics *telemetry.Metrics, tracer trace.Tracer, logger *slog.Logger, rlsMetrics *tenant.RLSMetrics) *Processor {
	return &Processor{
		Store:      store,
		Pool:       pool,
		Registry:   registry,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     logger,
		JobTimeout: DefaultJobTimeout,
		RLSMetrics: rlsMetrics,
	}
}

func (p *Processor) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if p.Tracer == nil {
		return ctx, noopSpan{}
	}
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attribute.String("span.name", name)))
}

// noopSpan satisfies trace.Span without pulling in otel's noop package,
// used only when Processor.Tracer is nil (e.g. in tests).
type noopSpan struct{ trace.Span }

func (noopSpan) End(...trace.SpanEndOption) {}

// ProcessDueBatch claims up to limit due jobs and executes each in order.
// A per-job failure does not abort the batch; a database-level batch failure
// does (§4.3 step 4).
func (p *Processor) ProcessDueBatch(ctx context.Context, limit int) BatchResult {
	ctx, span := p.startSpan(ctx, "process_pending_jobs")
	defer span.End()

	jobs, err := p.Store.ClaimDue(ctx, limit)
	if err != nil {
		return BatchResult{BatchError: err}
	}

	result := BatchResult{Claimed: len(jobs)}
	for _, job := range jobs {
		if p.processOne(ctx, job) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}

// processOne runs one claimed job's handler and persists its terminal or
// retry state. Returns true on a successful completion.
func (p *Processor) processOne(ctx context.Context, job jobstore.Job) bool {
	jobCtx, span := p.startSpan(ctx, "job_process:"+string(job.Type))
	defer span.End()

	start := time.Now()
	defer func() {
		if p.Metrics != nil && p.Metrics.JobProcessDuration != nil {
			p.Metrics.JobProcessDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
		}
	}()

	h, err := p.Registry.Resolve(job.Type)
	if err != nil {
		p.logf(jobCtx, "no handler for job type", job, err)
		outcome := p.recordOutcome(jobCtx, job, handlerOutcome{err: fmt.Errorf("no handler for %s", job.Type)})
		return p.finalize(jobCtx, job, outcome)
	}

	outcome := p.runInSavepoint(jobCtx, job, h)
	return p.finalize(jobCtx, job, outcome)
}

// recordOutcome persists an outcome that never reached a savepoint attempt
// (no handler registered for the job type) through the same
// attempts-based retry/dead-letter decision writeBookkeeping applies to a
// handler failure, instead of dead-lettering it unconditionally.
func (p *Processor) recordOutcome(ctx context.Context, job jobstore.Job, outcome handlerOutcome) handlerOutcome {
	txErr := pg.WithTx(ctx, p.Pool, func(tx pgx.Tx) error {
		return p.writeBookkeeping(ctx, tx, job, outcome)
	})
	if txErr != nil && outcome.err == nil {
		outcome.err = txErr
	}
	return outcome
}

// handlerOutcome captures what happened inside the savepoint.
type handlerOutcome struct {
	result      []byte
	err         error
	timedOut    bool
	cancelled   bool
}

func (p *Processor) runInSavepoint(ctx context.Context, job jobstore.Job, h handler.Handler) handlerOutcome {
	timeout := p.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	var outcome handlerOutcome

	txErr := pg.WithTx(ctx, p.Pool, func(tx pgx.Tx) error {
		rlsContextSet := true
		if job.TenantID != nil {
			if _, err := tx.Exec(ctx, "SELECT set_config('app.current_tenant_id', $1, false)", job.TenantID.String()); err != nil {
				outcome.err = err
				rlsContextSet = false
			}
		}

		// A set_config failure above skips straight to bookkeeping below:
		// the handler never runs without a confirmed tenant context, but the
		// job still needs its retry/dead-letter decision recorded on this
		// same outer tx instead of being left stuck in "running".
		if outcome.err == nil {
			handlerCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			spErr := pg.WithSavepoint(ctx, tx, func(sp pgx.Tx) error {
				session := tenant.FromTx(sp, job.TenantID, rlsContextSet, p.RLSMetrics)
				res, err := h.Execute(handlerCtx, job, session)
				if err != nil {
					outcome.err = err
					return err
				}
				outcome.result = res
				return nil
			})

			if spErr != nil {
				switch {
				case errors.Is(ctx.Err(), context.Canceled):
					outcome.cancelled = true
				case errors.Is(handlerCtx.Err(), context.DeadlineExceeded):
					outcome.timedOut = true
				}
				if outcome.err == nil {
					outcome.err = spErr
				}
			}
		}

		// Bookkeeping happens on the outer tx regardless of savepoint outcome.
		return p.writeBookkeeping(ctx, tx, job, outcome)
	})

	if txErr != nil && outcome.err == nil {
		outcome.err = txErr
	}
	return outcome
}

func (p *Processor) writeBookkeeping(ctx context.Context, tx pgx.Tx, job jobstore.Job, outcome handlerOutcome) error {
	if outcome.err == nil {
		return jobstore.MarkCompletedTx(ctx, tx, job.ID, outcome.result)
	}

	errMsg := sanitize(outcome.err)
	if outcome.timedOut {
		errMsg = "job timed out after " + p.effectiveTimeout().String()
	}
	if outcome.cancelled {
		errMsg = "job was cancelled"
		return jobstore.ScheduleRetryTx(ctx, tx, job.ID, errMsg, job.Attempts, job.MaxAttempts, true)
	}
	if handler.IsConfigError(outcome.err) {
		return jobstore.MarkDeadLetterTx(ctx, tx, job.ID, errMsg)
	}
	return jobstore.ScheduleRetryTx(ctx, tx, job.ID, errMsg, job.Attempts, job.MaxAttempts, false)
}

func (p *Processor) finalize(ctx context.Context, job jobstore.Job, outcome handlerOutcome) bool {
	if outcome.err != nil {
		p.logf(ctx, "job failed", job, outcome.err)
		return false
	}
	return true
}

func (p *Processor) effectiveTimeout() time.Duration {
	if p.JobTimeout <= 0 {
		return DefaultJobTimeout
	}
	return p.JobTimeout
}

// sanitize strips internal details from an error message, keeping only the
// text before the first colon (§7).
func sanitize(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx >= 0 {
		return msg[:idx]
	}
	return msg
}

func (p *Processor) logf(ctx context.Context, msg string, job jobstore.Job, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.ErrorContext(ctx, msg, "job_id", job.ID, "job_type", job.Type, "error", err)
}
