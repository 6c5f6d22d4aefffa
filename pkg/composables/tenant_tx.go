package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-ledger/pkg/constants"
)

type sessionKey struct{}

// appliedSession marks a transaction whose payroll session settings were
// already set for a tenant.
type appliedSession struct {
	tx       pgx.Tx
	tenantID uuid.UUID
}

func sessionApplied(ctx context.Context, tx pgx.Tx) bool {
	marked, ok := ctx.Value(sessionKey{}).(appliedSession)
	if !ok || marked.tx != tx {
		return false
	}
	tenantID, _ := UseTenantID(ctx)
	return marked.tenantID == tenantID
}

func markSession(ctx context.Context, tx pgx.Tx) context.Context {
	tenantID, _ := UseTenantID(ctx)
	return context.WithValue(ctx, sessionKey{}, appliedSession{tx: tx, tenantID: tenantID})
}

// InTenantTx joins the transaction already carried by ctx or opens a new one.
// Nested calls on the same transaction and tenant skip the session settings.
func InTenantTx(ctx context.Context, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		if sessionApplied(ctx, existing) {
			return fn(ctx)
		}
		if err := ApplyPayrollSession(ctx, existing); err != nil {
			return err
		}
		return fn(markSession(ctx, existing))
	}

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

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func InTenantTxResult[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
