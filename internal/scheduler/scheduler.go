// Package scheduler implements the cohort scheduler: a periodic trigger that
// atomically enqueues standard job bundles for groups of tenants, keyed by a
// deterministic dedup key so concurrent replicas firing the same window
// never double-enqueue (SPEC_FULL.md §4.5).
//
// Grounded on original_source/app/services/scheduler/orchestrator_production.py
// for the cohort/bucket semantics, and on the teacher's pkg/job/manager.go for
// the cron-to-periodic-trigger adapter shape (robfig/cron/v3).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudledger/jobcore/internal/jobstore"
)

// Cohort is a tier-derived grouping of tenants used to rate-limit scheduled
// work (§3 Glossary).
type Cohort string

const (
	CohortHighValue Cohort = "high_value"
	CohortActive    Cohort = "active"
	CohortDormant   Cohort = "dormant"
)

// tierPredicate maps each cohort to its SQL tier filter (§4.5 table).
var tierPredicate = map[Cohort][]string{
	CohortHighValue: {"enterprise", "pro"},
	CohortActive:    {"growth"},
	CohortDormant:   {"starter", "trial"},
}

// bucketTruncation is the rounding granularity applied to the scheduled
// instant when building a cohort's deterministic dedup key (§4.5.3).
var bucketTruncation = map[Cohort]time.Duration{
	CohortHighValue: 6 * time.Hour,
	CohortActive:    3 * time.Hour,
	CohortDormant:   time.Hour,
}

// standardBundle is enqueued once per tenant in a cohort invocation.
var standardBundle = []jobstore.JobType{
	jobstore.TypeFinOpsAnalysis,
	jobstore.TypeZombieScan,
	jobstore.TypeCostIngestion,
}

const maxDeadlockRetries = 3

// deadlockBackoff gives the retry delay for attempt i (0-indexed).
var deadlockBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Metrics is the narrow slice of telemetry.Metrics the scheduler needs.
type Metrics struct {
	DeadlockDetected *prometheus.CounterVec
	CohortDuration   *prometheus.HistogramVec
}

// Scheduler fires cohort and sweep triggers against the job store.
type Scheduler struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *Metrics
}

// New constructs a Scheduler.
func New(pool *pgxpool.Pool, logger *slog.Logger, metrics *Metrics) *Scheduler {
	return &Scheduler{Pool: pool, Logger: logger, Metrics: metrics}
}

// FireCohort enqueues the standard bundle for every tenant in cohort,
// retrying on deadlock/serialization failure up to 3 times with 1s/2s/4s
// backoff (§4.5.4). now is the invocation instant used for bucketing.
func (s *Scheduler) FireCohort(ctx context.Context, cohort Cohort, now time.Time) error {
	correlationID := uuid.New()
	log := s.logger().With("correlation_id", correlationID.String(), "cohort", string(cohort))

	start := time.Now()
	defer func() {
		if s.Metrics != nil && s.Metrics.CohortDuration != nil {
			s.Metrics.CohortDuration.WithLabelValues(string(cohort)).Observe(time.Since(start).Seconds())
		}
	}()

	bucket := now.UTC().Truncate(bucketTruncation[cohort])

	var lastErr error
	for attempt := 0; attempt < maxDeadlockRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(deadlockBackoff[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		count, err := s.fireCohortOnce(ctx, cohort, bucket)
		if err == nil {
			log.InfoContext(ctx, "cohort trigger completed", "tenants_enqueued", count, "bucket", bucket)
			return nil
		}

		if !isRetryable(err) {
			return fmt.Errorf("scheduler: fire cohort %s: %w", cohort, err)
		}

		lastErr = err
		if s.Metrics != nil && s.Metrics.DeadlockDetected != nil {
			s.Metrics.DeadlockDetected.WithLabelValues(string(cohort)).Inc()
		}
		log.WarnContext(ctx, "cohort trigger deadlock, retrying", "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("scheduler: fire cohort %s: exhausted retries: %w", cohort, lastErr)
}

// fireCohortOnce runs one attempt of the cohort invocation in a single
// transaction: tenant selection with FOR UPDATE SKIP LOCKED, followed by one
// deterministic-dedup-key enqueue per tenant per bundle job type (§4.5.1-3).
func (s *Scheduler) fireCohortOnce(ctx context.Context, cohort Cohort, bucket time.Time) (int, error) {
	tiers := tierPredicate[cohort]
	count := 0

	err := pgxTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT ts.tenant_id FROM tenant_subscriptions ts
			WHERE ts.tier = ANY($1) AND ts.status = 'active'
			FOR UPDATE SKIP LOCKED`, tiers)
		if err != nil {
			return err
		}
		var tenantIDs []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			tenantIDs = append(tenantIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		bucketTag := bucket.Format("2006-01-02T15")
		for _, tenantID := range tenantIDs {
			for _, jobType := range standardBundle {
				dedupKey := fmt.Sprintf("%s:%s:%s", tenantID, jobType, bucketTag)
				_, err := jobstore.EnqueueTx(ctx, tx, jobstore.EnqueueParams{
					Type:         jobType,
					TenantID:     &tenantID,
					Payload:      []byte(`{}`),
					ScheduledFor: &bucket,
					DedupKey:     &dedupKey,
				})
				if err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})
	return count, err
}

// FireRemediationSweep enqueues a remediation job for every tenant with an
// active policy allowing automated action (Fridays 20:00 per §4.5).
func (s *Scheduler) FireRemediationSweep(ctx context.Context, now time.Time) error {
	bucket := now.UTC().Truncate(time.Hour)
	return pgxTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT ts.tenant_id FROM tenant_subscriptions ts
			WHERE ts.status = 'active'
			FOR UPDATE SKIP LOCKED`)
		if err != nil {
			return err
		}
		var tenantIDs []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			tenantIDs = append(tenantIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		bucketTag := bucket.Format("2006-01-02T15")
		for _, tenantID := range tenantIDs {
			dedupKey := fmt.Sprintf("%s:remediation:%s", tenantID, bucketTag)
			if _, err := jobstore.EnqueueTx(ctx, tx, jobstore.EnqueueParams{
				Type:         jobstore.TypeRemediation,
				TenantID:     &tenantID,
				Payload:      []byte(`{}`),
				ScheduledFor: &bucket,
				DedupKey:     &dedupKey,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// FireBillingSweep enqueues one recurring_billing job per active
// subscription whose next_payment_date is due and which has a stored
// authorization token (§4.5, daily 04:00).
func (s *Scheduler) FireBillingSweep(ctx context.Context, now time.Time) error {
	bucket := now.UTC().Truncate(time.Hour)
	return pgxTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT ts.id, ts.tenant_id FROM tenant_subscriptions ts
			WHERE ts.status = 'active'
				AND ts.next_payment_date <= now()
				AND ts.authorization_token IS NOT NULL
			FOR UPDATE SKIP LOCKED`)
		if err != nil {
			return err
		}
		type due struct {
			subscriptionID uuid.UUID
			tenantID       uuid.UUID
		}
		var subs []due
		for rows.Next() {
			var d due
			if err := rows.Scan(&d.subscriptionID, &d.tenantID); err != nil {
				rows.Close()
				return err
			}
			subs = append(subs, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		bucketTag := bucket.Format("2006-01-02T15")
		for _, d := range subs {
			dedupKey := fmt.Sprintf("%s:recurring_billing:%s", d.subscriptionID, bucketTag)
			payload := []byte(fmt.Sprintf(`{"subscription_id":%q}`, d.subscriptionID))
			if _, err := jobstore.EnqueueTx(ctx, tx, jobstore.EnqueueParams{
				Type:         jobstore.TypeRecurringBilling,
				TenantID:     &d.tenantID,
				Payload:      payload,
				ScheduledFor: &bucket,
				DedupKey:     &dedupKey,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// isRetryable reports whether err is a Postgres deadlock (40P01) or
// serialization failure (40001), per §4.5.4.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func pgxTxFunc(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
