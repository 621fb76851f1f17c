package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories check this first so that multi-write operations started with
// WithTx share a single all-or-nothing transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Runner runs a function inside a transaction. Services depend on this
// instead of the pool so tests can substitute a pass-through.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// NewRunner returns a Runner backed by WithTx on the given pool.
func NewRunner(pool *pgxpool.Pool) Runner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithTx(ctx, pool, fn)
	}
}

// WithTx runs fn inside a database transaction. The transaction is stored in
// the context passed to fn; any repository call made with that context joins
// it. The transaction commits when fn returns nil and rolls back otherwise.
// Nested calls join the outer transaction instead of opening a new one.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
