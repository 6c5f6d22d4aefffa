package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
)

func (h *harness) linkedRun(t *testing.T, scope domain.BatchScope) (uuid.UUID, *CreatePaymentBatchResult) {
	t.Helper()
	runID, _ := h.builtRun(t, "R-1")
	batch, err := h.svc.CreatePaymentBatchFromLiabilities(context.Background(), h.reviewer, runID, CreateBatchInput{Scope: scope})
	require.NoError(t, err)
	return runID, batch
}

func (h *harness) runLiabilities(t *testing.T, runID uuid.UUID) []domain.Liability {
	t.Helper()
	items, err := h.world.ListLiabilitiesByRun(context.Background(), h.tenantID, runID)
	require.NoError(t, err)
	return items
}

func TestApplySettlementSync_PartialThenPaid(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	runID, batch := h.linkedRun(t, domain.ScopeNetPay)
	matchedAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	// Half of the 1820 batch has cleared the bank.
	h.world.evidence[batch.PaymentBatchID] = domain.BankEvidence{MatchCount: 1, MatchedTotal: amt(910), LatestMatchAt: &matchedAt}
	res, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 2, res.Applied)
	require.Equal(t, 2, res.Counts[domain.ActionMarkPartial])
	require.False(t, res.Idempotent)

	for _, l := range h.runLiabilities(t, runID) {
		if !l.IsEmployee() {
			require.Equal(t, domain.LiabilityOpen, l.Status)
			continue
		}
		require.Equal(t, domain.LiabilityPartiallyPaid, l.Status)
		require.Equal(t, l.Amount.MulRatio(amt(1), amt(2)).String(), l.SettledAmount.String())
	}
	requireConserved(t, h.runLiabilities(t, runID))
	require.Len(t, h.world.settlements, 2)

	// Applying the same evidence again changes nothing.
	again, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 0, again.Applied)
	require.True(t, again.Idempotent)
	require.Equal(t, 2, again.Counts[domain.ActionNoop])
	require.Equal(t, domain.ReasonNoNewEvidence, again.Items[0].Decision.Reason)
	require.Len(t, h.world.settlements, 2)

	// The rest clears.
	h.world.evidence[batch.PaymentBatchID] = domain.BankEvidence{MatchCount: 2, MatchedTotal: amt(1820), LatestMatchAt: &matchedAt}
	final, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 2, final.Counts[domain.ActionMarkPaid])
	require.Len(t, h.world.settlements, 2, "same settlement key is updated in place")
	for _, s := range h.world.settlements {
		require.Equal(t, domain.SourceBankRecon, s.Source)
		require.Equal(t, 2, s.EvidenceCount)
	}

	items := h.runLiabilities(t, runID)
	requireConserved(t, items)
	summary := domain.Summarize(items)
	requireAmount(t, 1820, summary.TotalPaid)
	requireAmount(t, 840, summary.TotalOpen)
	for _, link := range h.world.links {
		require.Equal(t, domain.LinkPaid, link.Status)
	}

	// Paid liabilities are no longer candidates.
	done, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Empty(t, done.Items)
}

func TestApplySettlementSync_ReleasesCancelledBatch(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	runID, batch := h.linkedRun(t, domain.ScopeStatutory)
	h.world.setBatchStatus(batch.PaymentBatchID, domain.BatchStatusCancelled, domain.BatchStatusCancelled)

	res, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 5, res.Counts[domain.ActionReleaseToOpen])

	for _, l := range h.runLiabilities(t, runID) {
		require.Equal(t, domain.LiabilityOpen, l.Status)
		require.Nil(t, l.ReservedPaymentBatchID)
		require.True(t, l.SettledAmount.IsZero())
	}
	for _, link := range h.world.links {
		require.Equal(t, domain.LinkReleased, link.Status)
		require.NotNil(t, link.ReleasedAt)
	}
	require.Empty(t, h.world.settlements)
	require.Len(t, h.world.auditsFor("SETTLEMENT_RELEASE_TO_OPEN"), 5)

	// Released liabilities can be batched again.
	again, err := h.svc.CreatePaymentBatchFromLiabilities(ctx, h.reviewer, runID, CreateBatchInput{Scope: domain.ScopeStatutory, IdempotencyKey: "retry-1"})
	require.NoError(t, err)
	require.Equal(t, 5, again.LinkedCount)
	require.NotEqual(t, batch.PaymentBatchID, again.PaymentBatchID)
}

func TestApplySettlementSync_ExceptionAfterPartial(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	runID, batch := h.linkedRun(t, domain.ScopeNetPay)
	h.world.evidence[batch.PaymentBatchID] = domain.BankEvidence{MatchCount: 1, MatchedTotal: amt(910)}
	_, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)

	h.world.setBatchStatus(batch.PaymentBatchID, domain.BatchStatusFailed, domain.BatchStatusFailed)
	res, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 2, res.Counts[domain.ActionException])
	require.Equal(t, 0, res.Applied)
	for _, l := range h.runLiabilities(t, runID) {
		if l.IsEmployee() {
			require.Equal(t, domain.LiabilityPartiallyPaid, l.Status)
		}
	}
	exceptions := h.world.auditsFor("SETTLEMENT_EXCEPTION")
	require.Len(t, exceptions, 2)
	require.Equal(t, domain.ReasonCancelledAfterPartial, exceptions[0].Reason)
}

func TestApplySettlementSync_EvidenceFreeSettlement(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	runID, batch := h.linkedRun(t, domain.ScopeNetPay)
	h.world.setBatchStatus(batch.PaymentBatchID, domain.BatchStatusPaid, domain.BatchStatusPaid)

	preview, err := h.svc.PreviewSettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID})
	require.NoError(t, err)
	require.Equal(t, 2, preview.Counts[domain.ActionNoop])
	require.Equal(t, domain.ReasonInsufficientEvidence, preview.Items[0].Decision.Reason)

	allow := true
	preview, err = h.svc.PreviewSettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID, AllowEvidenceFreeSettlement: &allow})
	require.NoError(t, err)
	require.Equal(t, 2, preview.Counts[domain.ActionMarkPaid])
	require.Empty(t, h.world.settlements, "preview never writes")

	res, err := h.svc.ApplySettlementSync(ctx, h.reviewer, SyncFilter{RunID: &runID, AllowEvidenceFreeSettlement: &allow})
	require.NoError(t, err)
	require.Equal(t, 2, res.Applied)
	for _, s := range h.world.settlements {
		require.Equal(t, domain.SourceBatchLineStatus, s.Source)
	}
}

func TestApplySettlementSync_PeriodLocked(t *testing.T) {
	h := newHarness(Settings{})
	runID, batch := h.linkedRun(t, domain.ScopeNetPay)
	h.world.evidence[batch.PaymentBatchID] = domain.BankEvidence{MatchCount: 1, MatchedTotal: amt(1820)}
	h.world.lockedActions[ActionPayrollSettlement] = true

	_, err := h.svc.ApplySettlementSync(context.Background(), h.reviewer, SyncFilter{RunID: &runID})
	var locked *PeriodLockedError
	require.ErrorAs(t, err, &locked)
	require.Empty(t, h.world.settlements)
	for _, l := range h.runLiabilities(t, runID) {
		require.True(t, l.SettledAmount.IsZero())
	}
}
