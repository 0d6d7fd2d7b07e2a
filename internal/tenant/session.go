// Package tenant implements the tenant-scoped database session: every
// user-table query must run with a session-local app.current_tenant_id set so
// Postgres row-level-security policies apply, or be explicitly exempted as an
// internal-table statement (SPEC_FULL.md §4.1).
//
// Grounded on the context-key plumbing idiom in wisbric-nightowl's
// pkg/tenant/tenant.go, adapted from nightowl's schema-per-tenant isolation
// to this project's RLS-session-variable isolation (a different mechanism,
// same context-passing shape).
package tenant

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudledger/jobcore/internal/jobstore"
)

// ErrRLSEnforcementViolation is returned when a statement against a
// tenant-sensitive table runs without rls_context_set.
var ErrRLSEnforcementViolation = errors.New("rls_enforcement_violation_detected")

// internalTableExemptions lists statement prefixes that bypass the tenant
// context check: migration bookkeeping, liveness probes, and the job store's
// own bookkeeping tables, which are deliberately cross-tenant.
var internalTableExemptions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*select\s+1\s*$`),
	regexp.MustCompile(`(?i)^\s*select\s+version\(\)`),
	regexp.MustCompile(`(?i)\bschema_migrations\b`),
	regexp.MustCompile(`(?i)\bpg_catalog\b`),
	regexp.MustCompile(`(?i)\bjobs\b`),
	regexp.MustCompile(`(?i)\baudit_log\b`),
	regexp.MustCompile(`(?i)\btenants\b`),
	regexp.MustCompile(`(?i)\btenant_subscriptions\b`),
	regexp.MustCompile(`(?i)\bpricing_plans\b`),
}

// auditWriteFor binds jobstore.WriteAuditLog to q, so an RLS violation is
// recorded on the same connection or transaction the session already holds
// rather than opening a second one.
func auditWriteFor(q queryer) func(ctx context.Context, action, resourceType, resourceID string, tenantID *uuid.UUID, detail map[string]any) error {
	return func(ctx context.Context, action, resourceType, resourceID string, tenantID *uuid.UUID, detail map[string]any) error {
		return jobstore.WriteAuditLog(ctx, q, action, resourceType, resourceID, tenantID, detail)
	}
}

func isExemptStatement(sql string) bool {
	for _, re := range internalTableExemptions {
		if re.MatchString(sql) {
			return true
		}
	}
	return false
}

// queryer is the common Exec/Query/QueryRow shape both *pgxpool.Conn and
// pgx.Tx satisfy, letting a Session wrap either a pooled connection or a
// transaction/savepoint (the processor's per-job isolation boundary, §4.3).
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session is a connection- or transaction-scoped handle carrying an optional
// tenant identifier. Pool-acquired sessions must be released after use.
type Session struct {
	q             queryer
	conn          *pgxpool.Conn // non-nil only for pool-acquired sessions
	tenantID      *uuid.UUID
	rlsContextSet bool
	metrics       *RLSMetrics
	auditWrite    func(ctx context.Context, action, resourceType, resourceID string, tenantID *uuid.UUID, detail map[string]any) error
}

// RLSMetrics is the narrow slice of telemetry.Metrics the session needs,
// kept as its own type so this package does not import internal/telemetry
// directly (it only needs one counter).
type RLSMetrics struct {
	Missing prometheus.Counter
}

// Acquire checks out a connection from pool and, if tenantID is non-nil,
// sets app.current_tenant_id for the lifetime of the session. Passing a nil
// tenantID marks the session as request-bound and unset: any subsequent
// non-exempt query fails with ErrRLSEnforcementViolation, per §4.1.
func Acquire(ctx context.Context, pool *pgxpool.Pool, tenantID *uuid.UUID, metrics *RLSMetrics) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{q: conn, conn: conn, tenantID: tenantID, metrics: metrics}
	s.auditWrite = auditWriteFor(conn)
	if tenantID != nil {
		if _, err := conn.Exec(ctx, "SELECT set_config('app.current_tenant_id', $1, false)", tenantID.String()); err != nil {
			conn.Release()
			return nil, err
		}
		s.rlsContextSet = true
	}
	return s, nil
}

// AcquireSystem checks out a connection explicitly opted out of tenant
// scoping, for background callers with no single tenant in view (the cohort
// scheduler's tenant-selection query, for example).
func AcquireSystem(ctx context.Context, pool *pgxpool.Pool) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{q: conn, conn: conn, rlsContextSet: true, auditWrite: auditWriteFor(conn)}, nil
}

// FromTx wraps an already-open transaction (typically a savepoint opened by
// the processor for handler isolation, §4.3 step c) in a Session. tenantID,
// if non-nil, must already have been set via set_config on this transaction's
// connection by the caller before invoking the handler.
func FromTx(tx pgx.Tx, tenantID *uuid.UUID, rlsContextSet bool, metrics *RLSMetrics) *Session {
	return &Session{q: tx, tenantID: tenantID, rlsContextSet: rlsContextSet, metrics: metrics, auditWrite: auditWriteFor(tx)}
}

// Release returns the underlying connection to the pool. A no-op for
// transaction-wrapped sessions built with FromTx.
func (s *Session) Release() {
	if s.conn != nil {
		s.conn.Release()
	}
}

// Conn exposes the underlying *pgx.Conn for pool-acquired sessions that need
// direct access (e.g. to begin a transaction). Returns nil for
// transaction-wrapped sessions; prefer Query/Exec below when possible since
// they enforce the isolation check.
func (s *Session) Conn() *pgx.Conn {
	if s.conn == nil {
		return nil
	}
	return s.conn.Conn()
}

// Exec runs sql after verifying the isolation policy.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := s.checkIsolation(ctx, sql); err != nil {
		return 0, err
	}
	tag, err := s.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Query runs sql after verifying the isolation policy.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := s.checkIsolation(ctx, sql); err != nil {
		return nil, err
	}
	return s.q.Query(ctx, sql, args...)
}

// QueryRow runs sql after verifying the isolation policy.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) (pgx.Row, error) {
	if err := s.checkIsolation(ctx, sql); err != nil {
		return nil, err
	}
	return s.q.QueryRow(ctx, sql, args...), nil
}

func (s *Session) checkIsolation(ctx context.Context, sql string) error {
	trimmed := strings.TrimSpace(sql)
	if isExemptStatement(trimmed) {
		return nil
	}
	if s.rlsContextSet {
		return nil
	}
	if s.metrics != nil && s.metrics.Missing != nil {
		s.metrics.Missing.Inc()
	}
	if s.auditWrite != nil {
		_ = s.auditWrite(ctx, "rls_enforcement_violation_detected", "session", "", s.tenantID, map[string]any{"sql_prefix": firstWords(trimmed, 8)})
	}
	return ErrRLSEnforcementViolation
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
