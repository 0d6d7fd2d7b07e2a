package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/handler"
	"github.com/cloudledger/jobcore/internal/jobstore"
)

// fakeTx embeds a nil pgx.Tx so it satisfies the interface without stubbing
// every method; writeBookkeeping's jobstore calls only ever invoke Exec.
type fakeTx struct {
	pgx.Tx
	execs []execCall
}

type execCall struct {
	sql  string
	args []any
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) lastSQL() string {
	if len(f.execs) == 0 {
		return ""
	}
	return f.execs[len(f.execs)-1].sql
}

func TestWriteBookkeeping_SuccessMarksCompleted(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Attempts: 1, MaxAttempts: 3}

	err := p.writeBookkeeping(context.Background(), tx, job, handlerOutcome{result: []byte(`{"ok":true}`)})
	require.NoError(t, err)
	require.Len(t, tx.execs, 1)
	require.Contains(t, tx.lastSQL(), "status = 'completed'")
}

func TestWriteBookkeeping_FailureUnderMaxAttemptsReschedules(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Attempts: 1, MaxAttempts: 3}

	err := p.writeBookkeeping(context.Background(), tx, job, handlerOutcome{err: errors.New("boom: detail")})
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'pending'")
}

func TestWriteBookkeeping_FailureAtMaxAttemptsDeadLetters(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Attempts: 3, MaxAttempts: 3}

	err := p.writeBookkeeping(context.Background(), tx, job, handlerOutcome{err: errors.New("boom")})
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'dead_letter'")
}

// TestWriteBookkeeping_NoHandlerErrorGoesThroughRetryDecision is a
// regression test: a job whose type has no registered handler used to be
// dead-lettered unconditionally. It must decay through the same
// attempts-based retry/dead-letter decision as any other handler failure.
func TestWriteBookkeeping_NoHandlerErrorGoesThroughRetryDecision(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Type: jobstore.TypeDunning, Attempts: 1, MaxAttempts: 3}

	outcome := handlerOutcome{err: fmt.Errorf("no handler for %s", job.Type)}
	err := p.writeBookkeeping(context.Background(), tx, job, outcome)
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'pending'",
		"attempts remain, so a missing handler should retry like any other failure, not dead-letter immediately")
}

func TestWriteBookkeeping_NoHandlerErrorDeadLettersOnceAttemptsExhausted(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Type: jobstore.TypeDunning, Attempts: 3, MaxAttempts: 3}

	outcome := handlerOutcome{err: fmt.Errorf("no handler for %s", job.Type)}
	err := p.writeBookkeeping(context.Background(), tx, job, outcome)
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'dead_letter'")
}

func TestWriteBookkeeping_ConfigErrorDeadLettersImmediately(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Attempts: 1, MaxAttempts: 3}

	err := p.writeBookkeeping(context.Background(), tx, job, handlerOutcome{
		err: fmt.Errorf("bad webhook url: %w", handler.ErrInvalidPayload),
	})
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'dead_letter'")
}

func TestWriteBookkeeping_CancelledUsesFixedDelayNeverDeadLetters(t *testing.T) {
	t.Parallel()

	p := &Processor{}
	tx := &fakeTx{}
	job := jobstore.Job{ID: uuid.New(), Attempts: 3, MaxAttempts: 3}

	err := p.writeBookkeeping(context.Background(), tx, job, handlerOutcome{err: context.Canceled, cancelled: true})
	require.NoError(t, err)
	require.Contains(t, tx.lastSQL(), "status = 'pending'")
}

func TestSanitize_StripsAfterFirstColon(t *testing.T) {
	t.Parallel()

	require.Equal(t, "connection refused", sanitize(errors.New("connection refused: dial tcp 10.0.0.1:5432")))
	require.Equal(t, "no colon here", sanitize(errors.New("no colon here")))
}
