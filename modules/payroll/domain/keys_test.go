package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLiabilityKey_CollisionFree(t *testing.T) {
	tenants := []uuid.UUID{uuid.New(), uuid.New()}
	entities := []uuid.UUID{uuid.New(), uuid.New()}
	runs := []uuid.UUID{uuid.New(), uuid.New()}
	lines := []uuid.UUID{uuid.New(), uuid.New()}

	seen := map[string]struct{}{}
	ids := map[uuid.UUID]struct{}{}
	for _, tenant := range tenants {
		for _, le := range entities {
			for _, run := range runs {
				keys := make([]LiabilityKey, 0, len(lines)+len(StatutoryTypes))
				for _, line := range lines {
					keys = append(keys, NetLiabilityKey(tenant, le, run, line))
				}
				for _, typ := range StatutoryTypes {
					keys = append(keys, StatutoryLiabilityKey(tenant, le, run, typ))
				}
				for _, k := range keys {
					_, dup := seen[k.String()]
					require.False(t, dup, "duplicate key %s", k)
					seen[k.String()] = struct{}{}
					ids[k.ID()] = struct{}{}
				}
			}
		}
	}
	require.Len(t, ids, len(seen))
}

func TestLiabilityKey_Deterministic(t *testing.T) {
	tenant, le, run, line := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	a := NetLiabilityKey(tenant, le, run, line)
	b := NetLiabilityKey(tenant, le, run, line)
	require.Equal(t, a.String(), b.String())
	require.Equal(t, a.ID(), b.ID())
	require.Contains(t, a.String(), "NET:"+line.String())
	require.Contains(t, StatutoryLiabilityKey(tenant, le, run, LiabilityEmployerTax).String(), "STAT:EMPLOYER_TAX")
}

func TestSettlementKey_VariesByEveryField(t *testing.T) {
	base := SettlementKey{
		TenantID: uuid.New(), RunID: uuid.New(), LiabilityID: uuid.New(),
		LinkID: uuid.New(), PaymentBatchID: uuid.New(), Source: SourceBankRecon,
	}
	variants := []SettlementKey{base, base, base, base, base, base}
	variants[0].TenantID = uuid.New()
	variants[1].RunID = uuid.New()
	variants[2].LiabilityID = uuid.New()
	variants[3].LinkID = uuid.New()
	variants[4].PaymentBatchID = uuid.New()
	variants[5].Source = SourceBatchLineStatus

	seen := map[string]struct{}{base.String(): {}}
	for _, v := range variants {
		_, dup := seen[v.String()]
		require.False(t, dup)
		seen[v.String()] = struct{}{}
		require.NotEqual(t, base.ID(), v.ID())
	}
}

func TestJournalNumbersAndBatchKey(t *testing.T) {
	run := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	require.Equal(t, "PAYROLL-ACCRUAL-11111111-1111-1111-1111-111111111111", AccrualJournalNumber(run))
	require.Equal(t, "PAYROLL-REVERSAL-11111111-1111-1111-1111-111111111111", ReversalJournalNumber(run))
	require.Equal(t, "PAYROLL_LIAB_BATCH|11111111-1111-1111-1111-111111111111|NET_PAY", DefaultBatchIdempotencyKey(run, ScopeNetPay))
	require.NotEqual(t, DefaultBatchIdempotencyKey(run, ScopeAll), DefaultBatchIdempotencyKey(run, ScopeStatutory))
}

func TestBatchAttemptKey(t *testing.T) {
	base := DefaultBatchIdempotencyKey(uuid.MustParse("11111111-1111-1111-1111-111111111111"), ScopeStatutory)
	require.Equal(t, base, BatchAttemptKey(base, 0))
	require.Equal(t, base, BatchAttemptKey(base, 1))
	require.Equal(t, base+"|2", BatchAttemptKey(base, 2))
	require.NotEqual(t, BatchAttemptKey(base, 2), BatchAttemptKey(base, 12))
}
