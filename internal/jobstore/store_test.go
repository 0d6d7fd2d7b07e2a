package jobstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeExec is a minimal executor/Execer double that records the SQL and args
// of every call, letting the bookkeeping and audit helpers below be tested
// without a live Postgres connection.
type fakeExec struct {
	calls []fakeExecCall
}

type fakeExecCall struct {
	sql  string
	args []any
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, fakeExecCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeExec) lastSQL() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1].sql
}

func TestMarkCompletedTx_ClearsErrorMessage(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	err := MarkCompletedTx(context.Background(), exec, uuid.New(), json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL(), "status = 'completed'")
	require.Contains(t, exec.lastSQL(), "error_message = NULL")
}

func TestScheduleRetryTx_Cancelled_UsesFixedDelayNeverDeadLetters(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	// attempts already at maxAttempts: without the cancelled override this
	// would dead-letter (L1); cancellation must still win (L2).
	err := ScheduleRetryTx(context.Background(), exec, uuid.New(), "cancelled", 3, 3, true)
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL(), "status = 'pending'")
	require.Contains(t, exec.calls[0].args, CancellationDelay)
}

func TestScheduleRetryTx_AttemptsExhausted_DeadLetters(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	err := ScheduleRetryTx(context.Background(), exec, uuid.New(), "boom", 3, 3, false)
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL(), "status = 'dead_letter'")
}

func TestScheduleRetryTx_UnderMax_BacksOffExponentially(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	err := ScheduleRetryTx(context.Background(), exec, uuid.New(), "boom", 2, 5, false)
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL(), "status = 'pending'")

	wantDelay := BackoffBase * time.Duration(1<<uint(2-1))
	require.Contains(t, exec.calls[0].args, wantDelay)
}

func TestMarkDeadLetterTx_SetsTerminalState(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	err := MarkDeadLetterTx(context.Background(), exec, uuid.New(), "unrecoverable")
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL(), "status = 'dead_letter'")
}

func TestWriteAuditLog_InsertsOneRowWithDetailJSON(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	tenantID := uuid.New()
	err := WriteAuditLog(context.Background(), exec, "hard_delete", "job", "job-123", &tenantID, map[string]any{"job_type": "dunning"})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	require.Contains(t, exec.lastSQL(), "INSERT INTO audit_log")

	var detail []byte
	for _, a := range exec.calls[0].args {
		if rm, ok := a.([]byte); ok {
			detail = rm
		}
	}
	require.JSONEq(t, `{"job_type":"dunning"}`, string(detail))
}

func TestNewHardDeleteAuditWriter_RecordsJobIDAndType(t *testing.T) {
	t.Parallel()

	exec := &fakeExec{}
	job := Job{ID: uuid.New(), Type: TypeDunning}

	writer := NewHardDeleteAuditWriter()
	err := writer(context.Background(), fakeTxAdapter{fakeExec: exec}, job)
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	require.Contains(t, exec.calls[0].args, job.ID.String())
}

// fakeTxAdapter lets fakeExec stand in for a pgx.Tx wherever only Exec is
// invoked; AuditWriter's signature requires pgx.Tx so it can share a
// transaction with a hard delete, but WriteAuditLog itself only calls Exec.
// Embedding the (nil) interface satisfies every other method by promotion.
type fakeTxAdapter struct {
	pgx.Tx
	*fakeExec
}

func (f fakeTxAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.fakeExec.Exec(ctx, sql, args...)
}

func TestEnqueueTx_RejectsUnknownJobType(t *testing.T) {
	t.Parallel()

	// EnqueueTx validates p.Type against ValidTypes before ever touching the
	// transaction, so this rejection path needs no database.
	_, err := EnqueueTx(context.Background(), nil, EnqueueParams{Type: JobType("not_a_real_type")})
	require.ErrorIs(t, err, ErrInvalidJobType)
}
