package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes fn within a database transaction opened from pool.
// If fn returns an error, the transaction is rolled back. If fn panics, the
// transaction is rolled back and the panic is re-raised. If fn succeeds, the
// transaction is committed.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
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

// WithSavepoint runs fn inside a real Postgres savepoint nested within an
// already-open transaction. It gives a job handler a rollback boundary
// distinct from the outer bookkeeping transaction's commit: on any error from
// fn, only the savepoint is rolled back, leaving the outer tx free to record
// status/retry bookkeeping afterward (§4.3 Isolation guarantee; §9 redesign
// note on replacing the source's nested-transaction-for-isolation pattern).
func WithSavepoint(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sp.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}

	return sp.Commit(ctx)
}
