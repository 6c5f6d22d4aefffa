package persistence

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/constants"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

func txContext(tenantID uuid.UUID, tx *stubTx) context.Context {
	return context.WithValue(composables.WithTenantID(context.Background(), tenantID), constants.TxKey, tx)
}

func TestPayrollRepository_GetRun_MapsRowAndTotals(t *testing.T) {
	tenantID, runID, leID := uuid.New(), uuid.New(), uuid.New()
	payDate := time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 29, 10, 0, 0, 0, time.UTC)

	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "FROM payroll_runs")
			require.NotContains(t, sql, "FOR UPDATE")
			require.Equal(t, pgUUID(tenantID), args[0])
			require.Equal(t, pgUUID(runID), args[1])
			return &stubRows{idx: 1, data: [][]any{{
				pgUUID(runID), pgUUID(tenantID), pgUUID(leID), "RUN-1", "ADP", "2026-03", pgtype.Date{Time: payDate, Valid: true}, "USD",
				"IMPORTED", "REGULAR", pgtype.UUID{}, pgtype.UUID{}, false, pgtype.UUID{},
				[]byte(`{"net_pay":"1820","gross":"2310"}`), 2, pgUUID(uuid.New()), pgtype.Timestamptz{Time: now, Valid: true},
				pgtype.UUID{}, pgtype.Timestamptz{}, pgtype.UUID{}, pgtype.Timestamptz{},
				pgtype.Timestamptz{Time: now, Valid: true}, pgtype.Timestamptz{Time: now, Valid: true},
			}}}
		},
	}

	run, err := NewPayrollRepository().GetRun(txContext(tenantID, tx), tenantID, runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, leID, run.LegalEntityID)
	require.Equal(t, domain.RunStatusImported, run.Status)
	require.Equal(t, payDate, run.PayDate)
	require.Equal(t, "1820.000000", run.Totals.NetPay.String())
	require.Equal(t, 2, run.EmployeeCount)
	require.NotNil(t, run.ImportedAt)
	require.Nil(t, run.AccrualJournalID)
}

func TestPayrollRepository_LockRun_NotFound(t *testing.T) {
	tenantID := uuid.New()
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "FOR UPDATE")
			return stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	_, err := NewPayrollRepository().LockRun(txContext(tenantID, tx), tenantID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPayrollRepository_ListLiabilities_ScopeArgsFirst(t *testing.T) {
	tenantID, runID := uuid.New(), uuid.New()
	allowed := pgUUIDArray([]uuid.UUID{uuid.New()})
	called := false

	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			called = true
			require.Contains(t, sql, "l.legal_entity_id = ANY($1::uuid[])")
			require.Contains(t, sql, "l.tenant_id = $2")
			require.Contains(t, sql, "l.run_id = $3")
			require.Contains(t, sql, "l.status = ANY($4::text[])")
			require.Contains(t, sql, "LIMIT $5")
			require.Equal(t, allowed, args[0])
			require.Equal(t, pgUUID(tenantID), args[1])
			require.Equal(t, []string{"OPEN", "IN_BATCH"}, args[3])
			require.Equal(t, 50, args[4])
			return &stubRows{}, nil
		},
	}

	out, err := NewPayrollRepository().ListLiabilities(txContext(tenantID, tx), tenantID, services.LiabilityFilter{
		RunID:    &runID,
		Statuses: []domain.LiabilityStatus{domain.LiabilityOpen, domain.LiabilityInBatch},
		Limit:    50,
		Scope:    services.ScopePredicate{Clause: "l.legal_entity_id = ANY($1::uuid[])", Args: []any{allowed}},
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Empty(t, out)
}

func TestPayrollRepository_ListSettlementCandidates_LocksLiabilityAndLink(t *testing.T) {
	tenantID := uuid.New()
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "JOIN payroll_payment_links k")
			require.Contains(t, sql, "k.payment_batch_id = l.reserved_payment_batch_id")
			require.Contains(t, sql, "l.status IN ('IN_BATCH', 'PARTIALLY_PAID')")
			require.Contains(t, sql, "FOR UPDATE OF l, k")
			require.Contains(t, sql, "LIMIT $2")
			return &stubRows{}, nil
		},
	}

	_, err := NewPayrollRepository().ListSettlementCandidates(txContext(tenantID, tx), tenantID, services.SettlementFilter{Limit: 100}, true)
	require.NoError(t, err)
}

func TestPayrollRepository_UpsertSettlement_KeepsGreatest(t *testing.T) {
	tenantID := uuid.New()
	in := domain.Settlement{
		ID:            uuid.New(),
		TenantID:      tenantID,
		RunID:         uuid.New(),
		LiabilityID:   uuid.New(),
		LinkID:        uuid.New(),
		Source:        domain.SourceBankRecon,
		SettlementKey: "PAYROLL_SETTLE|k",
		SettledAmount: money.MustParse("490"),
		EvidenceCount: 1,
	}
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "ON CONFLICT (tenant_id, settlement_key)")
			require.Contains(t, sql, "GREATEST(s.settled_amount, EXCLUDED.settled_amount)")
			require.Equal(t, "PAYROLL_SETTLE|k", args[7])
			return stubRow{scan: func(dest ...any) error {
				require.Len(t, dest, 15)
				*dest[0].(*pgtype.UUID) = pgUUID(in.ID)
				*dest[6].(*string) = string(domain.SourceBankRecon)
				*dest[7].(*string) = in.SettlementKey
				*dest[8].(*money.Amount) = money.MustParse("980")
				*dest[9].(*int) = 2
				*dest[14].(*bool) = false
				return nil
			}}
		},
	}

	stored, inserted, err := NewPayrollRepository().UpsertSettlement(txContext(tenantID, tx), in)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "980.000000", stored.SettledAmount.String())
	require.Equal(t, 2, stored.EvidenceCount)
}

func TestPayrollRepository_InsertAuditLog_WritesJSONColumns(t *testing.T) {
	tenantID, entityID, runID := uuid.New(), uuid.New(), uuid.New()
	var got []any
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "INSERT INTO payroll_audit_logs")
			require.Contains(t, sql, "$13::jsonb")
			got = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	err := NewPayrollRepository().InsertAuditLog(txContext(tenantID, tx), services.AuditLogInsert{
		TenantID:        tenantID,
		RequestID:       "req-1",
		TransactionTime: time.Now(),
		ActorID:         uuid.New(),
		Action:          "RUN_FINALIZE",
		Result:          services.AuditResultSuccess,
		EntityType:      "payroll_run",
		EntityID:        entityID,
		RunID:           &runID,
		Reason:          "month end",
		NewValues:       map[string]any{"status": "FINALIZED"},
	})
	require.NoError(t, err)
	require.Len(t, got, 13)
	require.Equal(t, pgtype.Text{}, got[10])
	require.JSONEq(t, `{"status":"FINALIZED"}`, got[11].(string))
	require.JSONEq(t, `{"reason":"month end"}`, got[12].(string))
	require.Equal(t, pgUUID(runID), got[9])
}

func TestPayrollRepository_UpdateLiability_MissingRow(t *testing.T) {
	tenantID := uuid.New()
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "UPDATE payroll_liabilities")
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}

	err := NewPayrollRepository().UpdateLiability(txContext(tenantID, tx), domain.Liability{ID: uuid.New(), TenantID: tenantID})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPayrollRepository_FindComponentMapping_NoneEffective(t *testing.T) {
	tenantID := uuid.New()
	asOf := time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC)
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "ORDER BY effective_from DESC")
			require.Equal(t, pgtype.Date{Time: asOf, Valid: true}, args[5])
			return stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	m, err := NewPayrollRepository().FindComponentMapping(txContext(tenantID, tx), services.MappingQuery{
		TenantID:      tenantID,
		LegalEntityID: uuid.New(),
		ProviderCode:  "ADP",
		Currency:      "USD",
		ComponentCode: domain.ComponentNetPayAccrual,
		AsOf:          asOf,
	})
	require.NoError(t, err)
	require.Nil(t, m)
}

type stubTx struct {
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("copy not implemented")
}

func (s *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	var results pgx.BatchResults
	return results
}

func (s *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if s.execFunc == nil {
		return pgconn.CommandTag{}, nil
	}
	return s.execFunc(ctx, sql, arguments...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{scan: func(dest ...any) error { return errors.New("query row not implemented") }}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

type stubRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return errors.New("no current row to scan")
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i, target := range dest {
		if row[i] == nil {
			continue
		}
		tv := reflect.ValueOf(target)
		if tv.Kind() != reflect.Pointer {
			return fmt.Errorf("scan target %T is not a pointer", target)
		}
		src := reflect.ValueOf(row[i])
		if !src.Type().AssignableTo(tv.Elem().Type()) {
			return fmt.Errorf("cannot scan %T into %T", row[i], target)
		}
		tv.Elem().Set(src)
	}
	return nil
}

func (r *stubRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.idx-1], nil
}

func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Err() error          { return r.err }
func (r *stubRows) Close()              {}
func (r *stubRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("scan not implemented")
	}
	return r.scan(dest...)
}
