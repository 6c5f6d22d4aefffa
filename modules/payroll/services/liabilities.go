package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type BuildLiabilitiesResult struct {
	RunID        uuid.UUID               `json:"run_id"`
	Liabilities  []domain.Liability      `json:"liabilities"`
	Summary      domain.LiabilitySummary `json:"summary"`
	AlreadyBuilt bool                    `json:"already_built"`
}

type liabilityDraft struct {
	rule   domain.LiabilityRule
	amount money.Amount
	line   *domain.RunLine
}

// BuildLiabilities expands a finalized run into one net-pay liability per
// employee line and one aggregate per non-zero statutory total. Every payable
// mapping is validated before anything is written.
func (s *PayrollService) BuildLiabilities(ctx context.Context, actor Actor, runID uuid.UUID) (*BuildLiabilitiesResult, error) {
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	var issues []domain.MappingIssue
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*BuildLiabilitiesResult, error) {
		run, err := s.repo.LockRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		if !run.HasPostedAccrual() {
			return nil, conflict(CodeRunNotFinalized, "run must be FINALIZED with a posted accrual journal")
		}

		// A run reversed after its build still replays what it carries.
		existing, err := s.repo.ListLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return &BuildLiabilitiesResult{
				RunID:        run.ID,
				Liabilities:  existing,
				Summary:      domain.Summarize(existing),
				AlreadyBuilt: true,
			}, nil
		}
		if run.RunType == domain.RunTypeReversal || run.IsReversed {
			return nil, conflict(CodeRunReversed, "reversed runs and reversal runs carry no liabilities")
		}
		if err := s.assertPeriod(txCtx, run, ActionPayrollLiabilityBuild); err != nil {
			return nil, err
		}

		lines, err := s.repo.ListRunLines(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		drafts := liabilityDrafts(run, lines)
		if len(drafts) == 0 {
			return nil, conflict(CodeNothingToPay, "run has no payable amounts")
		}

		accounts := map[string]domain.GLAccount{}
		for _, d := range drafts {
			code := d.rule.PayableComponent
			if _, done := accounts[code]; done {
				continue
			}
			res, err := s.resolveMapping(txCtx, MappingQuery{
				TenantID:      run.TenantID,
				LegalEntityID: run.LegalEntityID,
				ProviderCode:  run.ProviderCode,
				Currency:      run.Currency,
				ComponentCode: code,
				AsOf:          domain.Day(run.PayDate),
			}, domain.SideCredit)
			if err != nil {
				return nil, err
			}
			if res.Issue != nil {
				issues = append(issues, *res.Issue)
				accounts[code] = domain.GLAccount{}
				continue
			}
			accounts[code] = res.Resolved.Account
		}
		if len(issues) > 0 {
			return nil, conflict(CodePayableMappingInvalid, fmt.Sprintf("%d payable mapping(s) missing or invalid", len(issues))).
				withDetails(map[string]any{"issues": issues})
		}

		now := s.now()
		items := make([]domain.Liability, 0, len(drafts))
		for _, d := range drafts {
			var key domain.LiabilityKey
			l := domain.Liability{
				TenantID:             run.TenantID,
				LegalEntityID:        run.LegalEntityID,
				RunID:                run.ID,
				LiabilityType:        d.rule.Type,
				LiabilityGroup:       d.rule.Group,
				PayableComponentCode: d.rule.PayableComponent,
				PayableGLAccountID:   accounts[d.rule.PayableComponent].ID,
				Currency:             run.Currency,
				Amount:               d.amount,
				Status:               domain.LiabilityOpen,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if d.line != nil {
				key = domain.NetLiabilityKey(run.TenantID, run.LegalEntityID, run.ID, d.line.ID)
				code, name := d.line.EmployeeCode, d.line.EmployeeName
				l.EmployeeCode = &code
				l.EmployeeName = &name
				l.RunLineID = uuidPtr(d.line.ID)
			} else {
				key = domain.StatutoryLiabilityKey(run.TenantID, run.LegalEntityID, run.ID, d.rule.Type)
			}
			l.ID = key.ID()
			l.LiabilityKey = key.String()
			l.SetSettled(money.Zero)
			items = append(items, l)
		}
		if _, err := s.repo.InsertLiabilities(txCtx, items); err != nil {
			return nil, err
		}
		stored, err := s.repo.ListLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		summary := domain.Summarize(stored)
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "LIABILITY_BUILD", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			NewValues: summary,
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicLiabilitiesBuilt, run.ID, map[string]any{
			"run_id": run.ID, "count": len(stored), "summary": summary,
		}); err != nil {
			return nil, err
		}
		return &BuildLiabilitiesResult{RunID: run.ID, Liabilities: stored, Summary: summary}, nil
	})
	if len(issues) > 0 {
		s.auditOutsideTx(ctx, actor, AuditLogInsert{
			Action: "VALIDATION", Result: AuditResultValidation,
			EntityType: "payroll_run", EntityID: runID, RunID: uuidPtr(runID),
			Reason:    "payable mapping invalid",
			NewValues: issues,
			Meta:      map[string]any{"operation": "LIABILITY_BUILD"},
		})
	}
	if err := s.finish(ctx, "liability_build", actor, res != nil && res.AlreadyBuilt, err); err != nil {
		return nil, err
	}
	return res, nil
}

func liabilityDrafts(run domain.Run, lines []domain.RunLine) []liabilityDraft {
	sorted := append([]domain.RunLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LineNo < sorted[j].LineNo })

	netRule := domain.LiabilityRules[domain.LiabilityEmployeeNetPay]
	drafts := make([]liabilityDraft, 0, len(sorted)+len(domain.StatutoryTypes))
	for i := range sorted {
		line := sorted[i]
		if !line.Amounts.NetPay.IsPositive() {
			continue
		}
		drafts = append(drafts, liabilityDraft{rule: netRule, amount: line.Amounts.NetPay, line: &line})
	}
	for _, t := range domain.StatutoryTypes {
		rule := domain.LiabilityRules[t]
		total := rule.Total(run.Totals)
		if !total.IsPositive() {
			continue
		}
		drafts = append(drafts, liabilityDraft{rule: rule, amount: total})
	}
	return drafts
}

type ListLiabilitiesResult struct {
	Liabilities []domain.Liability      `json:"liabilities"`
	Summary     domain.LiabilitySummary `json:"summary"`
}

func (s *PayrollService) ListLiabilities(ctx context.Context, actor Actor, f LiabilityFilter) (*ListLiabilitiesResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if f.RunID != nil {
		if _, err := s.loadRunInScope(ctx, actor, *f.RunID); err != nil {
			return nil, err
		}
	}
	if f.LegalEntityID != nil {
		if err := s.assertLegalEntity(ctx, actor, *f.LegalEntityID); err != nil {
			return nil, err
		}
	}
	scope, err := s.scopePredicate(ctx, actor, "l.legal_entity_id")
	if err != nil {
		return nil, err
	}
	f.Scope = scope
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 1000
	}
	items, err := inTx(ctx, s, actor, func(txCtx context.Context) ([]domain.Liability, error) {
		return s.repo.ListLiabilities(txCtx, actor.TenantID, f)
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	return &ListLiabilitiesResult{Liabilities: items, Summary: domain.Summarize(items)}, nil
}
