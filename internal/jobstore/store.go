package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is the persistent job queue backed by Postgres.
type Store struct {
	pool     *pgxpool.Pool
	enqueued *prometheus.CounterVec
}

// New constructs a Store. enqueued may be nil in tests.
func New(pool *pgxpool.Pool, enqueued *prometheus.CounterVec) *Store {
	return &Store{pool: pool, enqueued: enqueued}
}

const jobColumns = `id, job_type, tenant_id, status, priority, dedup_key, payload, result,
	attempts, max_attempts, scheduled_for, started_at, completed_at, error_message, created_at, is_deleted`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var jobType, status string
	if err := row.Scan(
		&j.ID, &jobType, &j.TenantID, &status, &j.Priority, &j.DedupKey, &j.Payload, &j.Result,
		&j.Attempts, &j.MaxAttempts, &j.ScheduledFor, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage,
		&j.CreatedAt, &j.IsDeleted,
	); err != nil {
		return Job{}, err
	}
	j.Type = JobType(jobType)
	j.Status = Status(status)
	return j, nil
}

// Enqueue inserts a new job, or returns the existing row if dedup_key
// collides with a non-deleted record (P7).
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (Job, error) {
	var job Job
	err := pgxTxFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := EnqueueTx(ctx, tx, p)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	if s.enqueued != nil {
		s.enqueued.WithLabelValues(string(p.Type), priorityClass(p.Priority)).Inc()
	}

	return job, nil
}

// EnqueueTx is Enqueue's core insert-or-fetch-existing logic run against an
// explicit transaction, so callers that need enqueue-atomicity alongside
// other writes in the same transaction (the cohort scheduler, §4.5.1) don't
// need a nested Store-owned transaction.
func EnqueueTx(ctx context.Context, tx pgx.Tx, p EnqueueParams) (Job, error) {
	if !ValidTypes[p.Type] {
		return Job{}, fmt.Errorf("%w: %q", ErrInvalidJobType, p.Type)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
		if p.Type == TypeWebhookRetry {
			maxAttempts = WebhookMaxAttempts
		}
	}

	scheduledFor := time.Now().UTC()
	if p.ScheduledFor != nil {
		scheduledFor = *p.ScheduledFor
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO jobs (job_type, tenant_id, status, priority, dedup_key, payload,
			attempts, max_attempts, scheduled_for, created_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, 0, $6, $7, now())
		ON CONFLICT (dedup_key) WHERE dedup_key IS NOT NULL AND NOT is_deleted DO NOTHING
		RETURNING `+jobColumns,
		string(p.Type), p.TenantID, p.Priority, p.DedupKey, json.RawMessage(p.Payload), maxAttempts, scheduledFor,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Job{}, err
	}
	if p.DedupKey == nil {
		return Job{}, err
	}
	// No row inserted: a prior row with this dedup key already exists.
	existing := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE dedup_key = $1 AND NOT is_deleted`, *p.DedupKey)
	return scanJob(existing)
}

func priorityClass(p int) string {
	switch {
	case p > 0:
		return "high"
	case p < 0:
		return "low"
	default:
		return "normal"
	}
}

// ClaimDue atomically claims up to limit due jobs (default 10, max 50),
// transitioning them directly to running within the same statement so no
// window exists between claim and running-visibility (§4.2, §4.3 step 3a).
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, limit)
	}

	var jobs []Job
	err := pgxTxFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_for <= now()
				AND attempts < max_attempts AND NOT is_deleted
			ORDER BY priority DESC, scheduled_for ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return err
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		updated, err := tx.Query(ctx, `
			UPDATE jobs SET status = 'running', started_at = now(), attempts = attempts + 1
			WHERE id = ANY($1)
			RETURNING `+jobColumns, ids)
		if err != nil {
			return err
		}
		defer updated.Close()
		for updated.Next() {
			j, err := scanJob(updated)
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		return updated.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// executor is the minimal Exec shape shared by *pgxpool.Pool and pgx.Tx, so
// the bookkeeping writes below can run either standalone or as part of the
// processor's outer per-job transaction (§4.3 step c–g).
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MarkCompleted persists a successful terminal state (§4.3 step d).
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	return MarkCompletedTx(ctx, s.pool, id, result)
}

// MarkCompletedTx is MarkCompleted run against an explicit executor (the
// processor's outer bookkeeping transaction).
func MarkCompletedTx(ctx context.Context, exec executor, id uuid.UUID, result json.RawMessage) error {
	_, err := exec.Exec(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = now(), result = $2, error_message = NULL
		WHERE id = $1`, id, result)
	return err
}

// CheckpointPayload merges a partial result under categoryKey into a job's
// payload, letting a retried zombie_scan attempt resume from the last
// completed category instead of rescanning everything (§4.6 step 8).
func (s *Store) CheckpointPayload(ctx context.Context, id uuid.UUID, categoryKey string, data json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET payload = coalesce(payload, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1`, id, categoryKey, data)
	return err
}

// ScheduleRetry records a handler failure and either reschedules the job
// (transient) or dead-letters it (attempts exhausted), per §4.2 and laws
// L1/L3. cancelled forces the fixed 60s reschedule regardless of attempts
// (L2) and never dead-letters.
func (s *Store) ScheduleRetry(ctx context.Context, id uuid.UUID, errMsg string, attempts, maxAttempts int, cancelled bool) error {
	return ScheduleRetryTx(ctx, s.pool, id, errMsg, attempts, maxAttempts, cancelled)
}

// ScheduleRetryTx is ScheduleRetry run against an explicit executor.
func ScheduleRetryTx(ctx context.Context, exec executor, id uuid.UUID, errMsg string, attempts, maxAttempts int, cancelled bool) error {
	if cancelled {
		_, err := exec.Exec(ctx, `
			UPDATE jobs SET status = 'pending', scheduled_for = now() + $2, error_message = $3
			WHERE id = $1`, id, CancellationDelay, errMsg)
		return err
	}

	if attempts >= maxAttempts {
		_, err := exec.Exec(ctx, `
			UPDATE jobs SET status = 'dead_letter', completed_at = now(), error_message = $2
			WHERE id = $1`, id, errMsg)
		return err
	}

	delay := BackoffBase * time.Duration(1<<uint(attempts-1))
	_, err := exec.Exec(ctx, `
		UPDATE jobs SET status = 'pending', scheduled_for = now() + $2, error_message = $3
		WHERE id = $1`, id, delay, errMsg)
	return err
}

// MarkDeadLetter forces a job straight to the terminal dead_letter state,
// bypassing the attempts-based retry decision. Exported for callers outside
// the processor's own bookkeeping transaction; the processor itself always
// goes through MarkDeadLetterTx as part of writeBookkeeping's retry/dead-letter
// decision (§7), including for a job whose type has no registered handler.
func (s *Store) MarkDeadLetter(ctx context.Context, id uuid.UUID, errMsg string) error {
	return MarkDeadLetterTx(ctx, s.pool, id, errMsg)
}

// MarkDeadLetterTx is MarkDeadLetter run against an explicit executor.
func MarkDeadLetterTx(ctx context.Context, exec executor, id uuid.UUID, errMsg string) error {
	_, err := exec.Exec(ctx, `
		UPDATE jobs SET status = 'dead_letter', completed_at = now(), error_message = $2
		WHERE id = $1`, id, errMsg)
	return err
}

// SoftDelete flags a job as deleted without removing the row.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET is_deleted = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// AuditWriter records the audit trail entry for a hard delete.
type AuditWriter func(ctx context.Context, tx pgx.Tx, job Job) error

// Execer is the minimal Exec shape audit_log inserts need; satisfied by
// pgx.Tx, *pgxpool.Conn, and *pgxpool.Pool alike, so one writer serves both
// a transaction-scoped hard delete and a tenant session wrapping a pooled
// connection.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriteAuditLog inserts one audit_log row. It is the sole INSERT against
// that table in the codebase; every audit trail entry, hard-delete or
// RLS-violation, goes through it (§3 invariant 7, §4.1).
func WriteAuditLog(ctx context.Context, exec Execer, action, resourceType, resourceID string, tenantID *uuid.UUID, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `
		INSERT INTO audit_log (resource_type, resource_id, tenant_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)`, resourceType, resourceID, tenantID, action, detailJSON)
	return err
}

// NewHardDeleteAuditWriter returns the AuditWriter HardDelete uses in
// production: one WriteAuditLog call recording the job's id and type on the
// same tx that removes the row.
func NewHardDeleteAuditWriter() AuditWriter {
	return func(ctx context.Context, tx pgx.Tx, job Job) error {
		return WriteAuditLog(ctx, tx, "hard_delete", "job", job.ID.String(), job.TenantID, map[string]any{"job_type": string(job.Type)})
	}
}

// HardDelete permanently removes a job row. It is the sole code path that
// performs a hard delete, and it always writes exactly one audit record
// before the row disappears (§3 invariant 7, §9's redesign of the source's
// ORM before_delete hook into an explicit call).
func (s *Store) HardDelete(ctx context.Context, id uuid.UUID, audit AuditWriter) error {
	return pgxTxFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		job, err := scanJob(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrJobNotFound
			}
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
			return err
		}

		if audit != nil {
			return audit(ctx, tx, job)
		}
		return nil
	})
}

// ListByTenant implements the admin job-list query (§6), clamping limit to
// [1,100] and validating the sort column against an allow-list.
func (s *Store) ListByTenant(ctx context.Context, f ListFilter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	sortCol := "created_at"
	switch f.SortBy {
	case "scheduled_for", "status":
		sortCol = f.SortBy
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE NOT is_deleted`
	args := []any{}
	argN := 1
	if f.TenantID != nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argN)
		args = append(args, *f.TenantID)
		argN++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, string(*f.Status))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d", sortCol, direction, argN)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountByStatus implements the job-status aggregate (§6).
func (s *Store) CountByStatus(ctx context.Context, tenantID *uuid.UUID) (StatusCounts, error) {
	query := `SELECT status, count(*) FROM jobs WHERE NOT is_deleted`
	args := []any{}
	if tenantID != nil {
		query += ` AND tenant_id = $1`
		args = append(args, *tenantID)
	}
	query += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := StatusCounts{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
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
