package itf

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

// TestContext provides a fluent API for building test contexts
type TestContext struct {
	ctx      context.Context
	modules  []application.Module
	dbName   string
	tenantID uuid.UUID
	userID   uuid.UUID
}

func NewTestContext() *TestContext {
	return &TestContext{
		ctx:      context.Background(),
		tenantID: uuid.New(),
		userID:   uuid.New(),
	}
}

func (tc *TestContext) WithModules(modules ...application.Module) *TestContext {
	tc.modules = append(tc.modules, modules...)
	return tc
}

func (tc *TestContext) WithTenant(id uuid.UUID) *TestContext {
	tc.tenantID = id
	return tc
}

func (tc *TestContext) WithUser(id uuid.UUID) *TestContext {
	tc.userID = id
	return tc
}

func (tc *TestContext) WithDBName(name string) *TestContext {
	tc.dbName = name
	return tc
}

// Build creates a fresh database, migrates it and opens a transaction that
// is rolled back when the test ends. Tests are skipped without Postgres.
func (tc *TestContext) Build(tb testing.TB) *TestEnvironment {
	tb.Helper()
	RequireDatabase(tb)

	if tc.dbName == "" {
		tc.dbName = tb.Name()
	}
	if err := CreateDB(tc.ctx, tc.dbName); err != nil {
		tb.Fatal(err)
	}
	pool, err := NewPool(tc.ctx, DbOpts(tc.dbName))
	if err != nil {
		tb.Fatal(err)
	}

	app, err := SetupApplication(tc.ctx, pool, tc.modules...)
	if err != nil {
		pool.Close()
		tb.Fatal(err)
	}

	tx, err := pool.Begin(tc.ctx)
	if err != nil {
		pool.Close()
		tb.Fatal(err)
	}

	tb.Cleanup(func() {
		if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tb.Logf("Warning: failed to rollback transaction: %v", err)
		}
		pool.Close()
	})

	ctx := composables.WithPool(tc.ctx, pool)
	ctx = composables.WithTx(ctx, tx)
	ctx = composables.WithTenantID(ctx, tc.tenantID)
	ctx = composables.WithUserID(ctx, tc.userID)
	ctx = composables.WithRequestID(ctx, "itf-"+tc.tenantID.String()[:8])

	return &TestEnvironment{
		Ctx:      ctx,
		Pool:     pool,
		Tx:       tx,
		App:      app,
		TenantID: tc.tenantID,
		UserID:   tc.userID,
	}
}

// TestEnvironment contains all test dependencies
type TestEnvironment struct {
	Ctx      context.Context
	Pool     *pgxpool.Pool
	Tx       pgx.Tx
	App      application.Application
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// GetService is a generic helper that retrieves and casts a service
func GetService[T any](te *TestEnvironment) *T {
	var zero T
	service := te.App.Service(zero)
	if service == nil {
		return nil
	}
	return service.(*T)
}

// Exec runs a statement inside the test transaction.
func (te *TestEnvironment) Exec(tb testing.TB, sql string, args ...any) {
	tb.Helper()
	if _, err := te.Tx.Exec(te.Ctx, sql, args...); err != nil {
		tb.Fatalf("exec %q: %v", sql, err)
	}
}
