package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type SyncFilter struct {
	RunID         *uuid.UUID
	LegalEntityID *uuid.UUID
	Limit         int
	// AllowEvidenceFreeSettlement overrides the service default when set.
	AllowEvidenceFreeSettlement *bool
}

type SettlementSyncItem struct {
	RunID          uuid.UUID                 `json:"run_id"`
	LiabilityID    uuid.UUID                 `json:"liability_id"`
	LinkID         uuid.UUID                 `json:"link_id"`
	PaymentBatchID uuid.UUID                 `json:"payment_batch_id"`
	LiabilityType  domain.LiabilityType      `json:"liability_type"`
	EmployeeCode   *string                   `json:"employee_code,omitempty"`
	Decision       domain.SettlementDecision `json:"decision"`
	SettlementID   *uuid.UUID                `json:"settlement_id,omitempty"`
	Before         domain.LiabilityStatus    `json:"status_before"`
	After          domain.LiabilityStatus    `json:"status_after"`
	Applied        bool                      `json:"applied"`
}

type SettlementSyncResult struct {
	Items      []SettlementSyncItem            `json:"items"`
	Counts     map[domain.SettlementAction]int `json:"counts"`
	Applied    int                             `json:"applied"`
	Idempotent bool                            `json:"idempotent"`
}

func newSyncResult() *SettlementSyncResult {
	return &SettlementSyncResult{
		Items:  []SettlementSyncItem{},
		Counts: map[domain.SettlementAction]int{},
	}
}

func (r *SettlementSyncResult) add(item SettlementSyncItem) {
	r.Items = append(r.Items, item)
	r.Counts[item.Decision.Action]++
	if item.Applied {
		r.Applied++
	}
}

// PreviewSettlementSync classifies the current evidence without writing.
func (s *PayrollService) PreviewSettlementSync(ctx context.Context, actor Actor, f SyncFilter) (*SettlementSyncResult, error) {
	q, opts, err := s.prepareSync(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*SettlementSyncResult, error) {
		candidates, err := s.loadCandidates(txCtx, actor.TenantID, q, false)
		if err != nil {
			return nil, err
		}
		out := newSyncResult()
		for _, c := range candidates {
			out.add(syncItem(c, domain.ClassifySettlement(c, opts)))
		}
		out.Idempotent = true
		return out, nil
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	return res, nil
}

// ApplySettlementSync re-classifies under row locks and applies every
// actionable decision in one transaction.
func (s *PayrollService) ApplySettlementSync(ctx context.Context, actor Actor, f SyncFilter) (*SettlementSyncResult, error) {
	q, opts, err := s.prepareSync(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*SettlementSyncResult, error) {
		candidates, err := s.loadCandidates(txCtx, actor.TenantID, q, true)
		if err != nil {
			return nil, err
		}
		gated := map[string]bool{}
		out := newSyncResult()
		for _, c := range candidates {
			d := domain.ClassifySettlement(c, opts)
			item := syncItem(c, d)
			if d.Action.Mutates() {
				key := c.Liability.LegalEntityID.String() + "|" + c.RunPeriod
				if !gated[key] {
					if err := s.assertPeriodFor(txCtx, actor.TenantID, c.Liability.LegalEntityID, c.RunPeriod, ActionPayrollSettlement); err != nil {
						return nil, err
					}
					gated[key] = true
				}
			}
			if err := s.applyDecision(txCtx, actor, c, d, &item); err != nil {
				return nil, err
			}
			recordSettlementAction(string(d.Action))
			out.add(item)
		}
		out.Idempotent = out.Applied == 0
		return out, nil
	})
	if err := s.finish(ctx, "settlement_sync", actor, res != nil && res.Idempotent, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PayrollService) prepareSync(ctx context.Context, actor Actor, f SyncFilter) (SettlementFilter, domain.SettlementOptions, error) {
	opts := domain.SettlementOptions{AllowEvidenceFreeSettlement: s.settings.AllowEvidenceFreeSettlement}
	if f.AllowEvidenceFreeSettlement != nil {
		opts.AllowEvidenceFreeSettlement = *f.AllowEvidenceFreeSettlement
	}
	if err := validateActor(actor); err != nil {
		return SettlementFilter{}, opts, err
	}
	if f.Limit < 0 {
		return SettlementFilter{}, opts, invalidArgument("limit must not be negative")
	}
	limit := f.Limit
	if limit == 0 || limit > s.settings.SettlementSyncLimit {
		limit = s.settings.SettlementSyncLimit
	}
	if f.RunID != nil {
		if _, err := s.loadRunInScope(ctx, actor, *f.RunID); err != nil {
			return SettlementFilter{}, opts, err
		}
	}
	if f.LegalEntityID != nil {
		if err := s.assertLegalEntity(ctx, actor, *f.LegalEntityID); err != nil {
			return SettlementFilter{}, opts, err
		}
	}
	scope, err := s.scopePredicate(ctx, actor, "l.legal_entity_id")
	if err != nil {
		return SettlementFilter{}, opts, err
	}
	return SettlementFilter{RunID: f.RunID, LegalEntityID: f.LegalEntityID, Limit: limit, Scope: scope}, opts, nil
}

// loadCandidates enriches linked liabilities with batch status and bank
// evidence from the collaborators.
func (s *PayrollService) loadCandidates(ctx context.Context, tenantID uuid.UUID, q SettlementFilter, lock bool) ([]domain.SettlementCandidate, error) {
	candidates, err := s.repo.ListSettlementCandidates(ctx, tenantID, q, lock)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return candidates, nil
	}
	seen := map[uuid.UUID]bool{}
	var batchIDs []uuid.UUID
	for _, c := range candidates {
		if !seen[c.Link.PaymentBatchID] {
			seen[c.Link.PaymentBatchID] = true
			batchIDs = append(batchIDs, c.Link.PaymentBatchID)
		}
	}
	sort.Slice(batchIDs, func(i, j int) bool { return batchIDs[i].String() < batchIDs[j].String() })

	var batches map[uuid.UUID]PaymentBatch
	if s.collab.Batches != nil {
		if batches, err = s.collab.Batches.LoadPaymentBatches(ctx, tenantID, batchIDs); err != nil {
			return nil, err
		}
	}
	var evidence map[uuid.UUID]domain.BankEvidence
	if s.collab.Evidence != nil {
		if evidence, err = s.collab.Evidence.ActiveMatchesByBatch(ctx, tenantID, batchIDs); err != nil {
			return nil, err
		}
	}
	for i := range candidates {
		c := &candidates[i]
		if b, ok := batches[c.Link.PaymentBatchID]; ok {
			c.BatchStatus = b.Status
			c.BatchTotal = b.TotalAmount
			if line, ok := b.LineFor(c.Liability.ID); ok {
				c.BatchLineStatus = line.Status
			}
		}
		if ev, ok := evidence[c.Link.PaymentBatchID]; ok {
			c.Evidence = ev
		}
	}
	return candidates, nil
}

func syncItem(c domain.SettlementCandidate, d domain.SettlementDecision) SettlementSyncItem {
	return SettlementSyncItem{
		RunID:          c.Liability.RunID,
		LiabilityID:    c.Liability.ID,
		LinkID:         c.Link.ID,
		PaymentBatchID: c.Link.PaymentBatchID,
		LiabilityType:  c.Liability.LiabilityType,
		EmployeeCode:   c.Liability.EmployeeCode,
		Decision:       d,
		Before:         c.Liability.Status,
		After:          c.Liability.Status,
	}
}

func (s *PayrollService) applyDecision(ctx context.Context, actor Actor, c domain.SettlementCandidate, d domain.SettlementDecision, item *SettlementSyncItem) error {
	l := c.Liability
	link := c.Link
	before := map[string]any{
		"status":             l.Status,
		"settled_amount":     l.SettledAmount,
		"outstanding_amount": l.OutstandingAmount,
		"link_status":        link.Status,
	}
	now := s.now()

	switch d.Action {
	case domain.ActionNoop:
		return nil
	case domain.ActionException:
		return s.audit(ctx, actor, AuditLogInsert{
			Action: "SETTLEMENT_EXCEPTION", Result: AuditResultBlocked,
			EntityType: "payroll_liability", EntityID: l.ID, RunID: uuidPtr(l.RunID),
			Reason: d.Reason, OldValues: before,
			Meta: map[string]any{"payment_batch_id": link.PaymentBatchID, "batch_status": c.BatchStatus, "batch_line_status": c.BatchLineStatus},
		})
	case domain.ActionReleaseToOpen:
		link.Status = domain.LinkReleased
		link.SettledAmount = money.Zero
		link.ReleasedAt = timePtr(now)
		l.Release()
	case domain.ActionMarkPaid, domain.ActionMarkPartial:
		stored, _, err := s.repo.UpsertSettlement(ctx, settlementRow(c, d, now))
		if err != nil {
			return err
		}
		item.SettlementID = uuidPtr(stored.ID)
		target := money.Min(money.Max(stored.SettledAmount, d.TargetSettled), link.AllocatedAmount)
		delta := target.Sub(link.SettledAmount)
		link.SettledAmount = target
		if target.NearlyEqual(link.AllocatedAmount) {
			link.Status = domain.LinkPaid
		} else {
			link.Status = domain.LinkPartiallyPaid
		}
		l.SetSettled(l.SettledAmount.Add(delta))
		if l.OutstandingAmount.NearlyZero() {
			l.Status = domain.LiabilityPaid
		} else {
			l.Status = domain.LiabilityPartiallyPaid
		}
	}

	l.UpdatedAt = now
	if err := s.repo.UpdatePaymentLink(ctx, link); err != nil {
		return err
	}
	if err := s.repo.UpdateLiability(ctx, l); err != nil {
		return err
	}
	item.After = l.Status
	item.Applied = true

	if err := s.audit(ctx, actor, AuditLogInsert{
		Action: "SETTLEMENT_" + string(d.Action), EntityType: "payroll_liability", EntityID: l.ID, RunID: uuidPtr(l.RunID),
		Reason: d.Reason, OldValues: before,
		NewValues: map[string]any{
			"status":             l.Status,
			"settled_amount":     l.SettledAmount,
			"outstanding_amount": l.OutstandingAmount,
			"link_status":        link.Status,
		},
		Meta: map[string]any{"payment_batch_id": link.PaymentBatchID, "source": d.Source, "target_settled": d.TargetSettled},
	}); err != nil {
		return err
	}
	return s.emit(ctx, l.TenantID, TopicSettlementApplied, l.ID, map[string]any{
		"run_id":             l.RunID,
		"liability_id":       l.ID,
		"action":             d.Action,
		"status":             l.Status,
		"settled_amount":     l.SettledAmount,
		"outstanding_amount": l.OutstandingAmount,
	})
}

func settlementRow(c domain.SettlementCandidate, d domain.SettlementDecision, now time.Time) domain.Settlement {
	key := domain.SettlementKey{
		TenantID:       c.Liability.TenantID,
		RunID:          c.Liability.RunID,
		LiabilityID:    c.Liability.ID,
		LinkID:         c.Link.ID,
		PaymentBatchID: c.Link.PaymentBatchID,
		Source:         d.Source,
	}
	return domain.Settlement{
		ID:                   key.ID(),
		TenantID:             c.Liability.TenantID,
		RunID:                c.Liability.RunID,
		LiabilityID:          c.Liability.ID,
		LinkID:               c.Link.ID,
		PaymentBatchID:       c.Link.PaymentBatchID,
		Source:               d.Source,
		SettlementKey:        key.String(),
		SettledAmount:        d.TargetSettled,
		EvidenceCount:        c.Evidence.MatchCount,
		EvidenceMatchedTotal: c.Evidence.MatchedTotal,
		LatestMatchAt:        c.Evidence.LatestMatchAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
