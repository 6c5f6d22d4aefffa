package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/payroll-ledger/pkg/constants"
	"github.com/iota-uz/payroll-ledger/pkg/repo"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the transaction bound to ctx, falling back to the pool.
func UseTx(ctx context.Context) (repo.Tx, error) {
	if tx, ok := ctx.Value(constants.TxKey).(repo.Tx); ok && tx != nil {
		return tx, nil
	}
	return UsePool(ctx)
}

// MustUseTx is like UseTx but refuses the pool fallback; row locks are
// meaningless outside a transaction.
func MustUseTx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	if !ok || tx == nil {
		return nil, ErrNoTx
	}
	return tx, nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(constants.PoolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTx runs fn in a new transaction. ALWAYS creates a new transaction, even if
// ctx already carries one.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := WithTx(ctx, tx)
	if err := ApplyPayrollSession(txCtx, tx); err != nil {
		return rollback(ctx, tx, err)
	}
	if err := fn(markSession(txCtx, tx)); err != nil {
		return rollback(ctx, tx, err)
	}
	return tx.Commit(ctx)
}
