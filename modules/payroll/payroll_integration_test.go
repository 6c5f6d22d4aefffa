package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll"
	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
	"github.com/iota-uz/payroll-ledger/pkg/itf"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type shadowAuthorizer struct{}

func (shadowAuthorizer) Authorize(ctx context.Context, req authz.Request) error { return nil }

func (shadowAuthorizer) Check(ctx context.Context, req authz.Request) (bool, error) {
	return true, nil
}

func (shadowAuthorizer) Mode() authz.Mode { return authz.ModeShadow }

type ledgerSeed struct {
	legalEntityID uuid.UUID
	accounts      map[string]uuid.UUID
}

var seededComponents = map[string]domain.EntrySide{
	domain.ComponentBaseSalaryExpense:  domain.SideDebit,
	domain.ComponentNetPayAccrual:      domain.SideCredit,
	domain.ComponentEmployeeTaxAccrual: domain.SideCredit,
	domain.ComponentNetPayPayable:      domain.SideCredit,
	domain.ComponentEmployeeTaxPayable: domain.SideCredit,
}

func seedLedger(t *testing.T, env *itf.TestEnvironment) ledgerSeed {
	t.Helper()
	seed := ledgerSeed{legalEntityID: uuid.New(), accounts: map[string]uuid.UUID{}}
	bookID, periodID := uuid.New(), uuid.New()

	env.Exec(t, `INSERT INTO legal_entities (id, tenant_id, code, name) VALUES ($1, $2, 'LE-UZ', 'Tashkent LLC')`,
		seed.legalEntityID, env.TenantID)
	env.Exec(t, `INSERT INTO gl_books (id, tenant_id, legal_entity_id, book_type) VALUES ($1, $2, $3, 'LOCAL')`,
		bookID, env.TenantID, seed.legalEntityID)
	env.Exec(t, `
		INSERT INTO gl_fiscal_periods (id, tenant_id, book_id, code, start_date, end_date, status)
		VALUES ($1, $2, $3, '2026-03', '2026-03-01', '2026-03-31', 'OPEN')`,
		periodID, env.TenantID, bookID)

	for code, side := range seededComponents {
		accountID := uuid.New()
		seed.accounts[code] = accountID
		env.Exec(t, `INSERT INTO gl_accounts (id, tenant_id, legal_entity_id, code, name) VALUES ($1, $2, $3, $4, $4)`,
			accountID, env.TenantID, seed.legalEntityID, code)
		env.Exec(t, `
			INSERT INTO payroll_component_mappings (
				id, tenant_id, legal_entity_id, provider_code, currency, component_code, gl_account_id, entry_side, effective_from
			)
			VALUES ($1, $2, $3, 'ACME', 'UZS', $4, $5, $6, '2026-01-01')`,
			uuid.New(), env.TenantID, seed.legalEntityID, code, accountID, string(side))
	}
	for _, code := range []string{"E-001", "E-002"} {
		env.Exec(t, `
			INSERT INTO employee_beneficiary_accounts (tenant_id, legal_entity_id, employee_code, account_holder, account_number)
			VALUES ($1, $2, $3, $3, '20208000900000000001')`,
			env.TenantID, seed.legalEntityID, code)
	}
	return seed
}

func importRow(code string, base, tax int64) services.ImportRow {
	return services.ImportRow{
		EmployeeCode: code,
		EmployeeName: "Employee " + code,
		Amounts: domain.Components{
			BaseSalary:  money.FromInt(base),
			Gross:       money.FromInt(base),
			EmployeeTax: money.FromInt(tax),
			NetPay:      money.FromInt(base - tax),
		},
	}
}

func TestPayrollLifecycle_ImportToPaymentBatch(t *testing.T) {
	env := itf.NewTestContext().
		WithModules(payroll.NewModule(&payroll.ModuleOptions{Authorizer: shadowAuthorizer{}})).
		Build(t)
	seed := seedLedger(t, env)
	svc := itf.GetService[services.PayrollService](env)
	actor := services.Actor{TenantID: env.TenantID, UserID: env.UserID, RequestID: "lifecycle"}
	payDate := time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)

	imported, err := svc.ImportRun(env.Ctx, actor, services.ImportRunInput{
		LegalEntityCode: "LE-UZ",
		ProviderCode:    "ACME",
		Period:          "2026-03",
		PayDate:         &payDate,
		Currency:        "UZS",
		RunNo:           "RUN-2026-03",
		Rows:            []services.ImportRow{importRow("E-001", 1000, 120), importRow("E-002", 1500, 180)},
	})
	require.NoError(t, err)
	runID := imported.Run.ID
	require.Equal(t, domain.RunStatusImported, imported.Run.Status)
	require.Equal(t, seed.legalEntityID, imported.Run.LegalEntityID)

	reviewed, err := svc.ReviewRun(env.Ctx, actor, runID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusReviewed, reviewed.Run.Status)

	finalized, err := svc.FinalizeRun(env.Ctx, actor, runID, services.FinalizeOptions{})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFinalized, finalized.Run.Status)
	require.NotEqual(t, uuid.Nil, finalized.JournalID)
	require.False(t, finalized.IdempotentReplay)

	replay, err := svc.FinalizeRun(env.Ctx, actor, runID, services.FinalizeOptions{})
	require.NoError(t, err)
	require.True(t, replay.IdempotentReplay)
	require.Equal(t, finalized.JournalID, replay.JournalID)

	built, err := svc.BuildLiabilities(env.Ctx, actor, runID)
	require.NoError(t, err)
	require.False(t, built.AlreadyBuilt)
	require.Len(t, built.Liabilities, 3)
	for _, l := range built.Liabilities {
		require.Equal(t, seed.accounts[l.PayableComponentCode], l.PayableGLAccountID)
	}

	rebuilt, err := svc.BuildLiabilities(env.Ctx, actor, runID)
	require.NoError(t, err)
	require.True(t, rebuilt.AlreadyBuilt)

	batch, err := svc.CreatePaymentBatchFromLiabilities(env.Ctx, actor, runID, services.CreateBatchInput{Scope: domain.ScopeNetPay})
	require.NoError(t, err)
	require.False(t, batch.BatchReused)
	require.Equal(t, 2, batch.LinkedCount)
	require.True(t, money.FromInt(2200).NearlyEqual(batch.TotalAmount))
	require.Equal(t, domain.DefaultBatchIdempotencyKey(runID, domain.ScopeNetPay), batch.IdempotencyKey)

	again, err := svc.CreatePaymentBatchFromLiabilities(env.Ctx, actor, runID, services.CreateBatchInput{Scope: domain.ScopeNetPay})
	require.NoError(t, err)
	require.True(t, again.BatchReused)
	require.Equal(t, batch.PaymentBatchID, again.PaymentBatchID)
}
