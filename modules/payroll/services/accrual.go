package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type AccrualComponent struct {
	ComponentCode string           `json:"component_code"`
	Side          domain.EntrySide `json:"side"`
	Amount        money.Amount     `json:"amount"`
}

type PostingLine struct {
	ComponentCode string           `json:"component_code"`
	GLAccountID   uuid.UUID        `json:"gl_account_id"`
	GLAccountCode string           `json:"gl_account_code"`
	Side          domain.EntrySide `json:"side"`
	Debit         money.Amount     `json:"debit"`
	Credit        money.Amount     `json:"credit"`
}

type AccrualPreview struct {
	RunID           uuid.UUID             `json:"run_id"`
	RunStatus       domain.RunStatus      `json:"run_status"`
	Currency        string                `json:"currency"`
	Components      []AccrualComponent    `json:"components"`
	PostingLines    []PostingLine         `json:"posting_lines"`
	MissingMappings []domain.MappingIssue `json:"missing_mappings"`
	TotalDebit      money.Amount          `json:"total_debit"`
	TotalCredit     money.Amount          `json:"total_credit"`
	Difference      money.Amount          `json:"difference"`
	Balanced        bool                  `json:"balanced"`
	CanFinalize     bool                  `json:"can_finalize"`
}

// computeAccrual resolves a mapping for every non-zero accrual component of
// run. Missing or unusable mappings are collected rather than returned as
// errors.
func (s *PayrollService) computeAccrual(ctx context.Context, run domain.Run) (*AccrualPreview, error) {
	p := &AccrualPreview{
		RunID:           run.ID,
		RunStatus:       run.Status,
		Currency:        run.Currency,
		Components:      []AccrualComponent{},
		PostingLines:    []PostingLine{},
		MissingMappings: []domain.MappingIssue{},
	}
	for _, rule := range domain.AccrualRules {
		amount := rule.Amount(run.Totals)
		if amount.IsZero() {
			continue
		}
		p.Components = append(p.Components, AccrualComponent{ComponentCode: rule.ComponentCode, Side: rule.Side, Amount: amount})

		res, err := s.resolveMapping(ctx, MappingQuery{
			TenantID:      run.TenantID,
			LegalEntityID: run.LegalEntityID,
			ProviderCode:  run.ProviderCode,
			Currency:      run.Currency,
			ComponentCode: rule.ComponentCode,
			AsOf:          domain.Day(run.PayDate),
		}, rule.Side)
		if err != nil {
			return nil, err
		}
		if res.Issue != nil {
			p.MissingMappings = append(p.MissingMappings, *res.Issue)
			continue
		}
		line := PostingLine{
			ComponentCode: rule.ComponentCode,
			GLAccountID:   res.Resolved.Account.ID,
			GLAccountCode: res.Resolved.Account.Code,
			Side:          rule.Side,
		}
		if rule.Side == domain.SideDebit {
			line.Debit = amount
			p.TotalDebit = p.TotalDebit.Add(amount)
		} else {
			line.Credit = amount
			p.TotalCredit = p.TotalCredit.Add(amount)
		}
		p.PostingLines = append(p.PostingLines, line)
	}
	p.Difference = p.TotalDebit.Sub(p.TotalCredit)
	p.Balanced = len(p.PostingLines) > 0 && p.Difference.NearlyZero()
	p.CanFinalize = len(p.PostingLines) > 0 &&
		len(p.MissingMappings) == 0 &&
		p.Balanced &&
		run.Status == domain.RunStatusReviewed
	return p, nil
}

func (s *PayrollService) PreviewAccrual(ctx context.Context, actor Actor, runID uuid.UUID) (*AccrualPreview, error) {
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	p, err := inTx(ctx, s, actor, func(txCtx context.Context) (*AccrualPreview, error) {
		run, err := s.repo.GetRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		return s.computeAccrual(txCtx, run)
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	return p, nil
}

type ReviewResult struct {
	Run        domain.Run `json:"run"`
	Idempotent bool       `json:"idempotent"`
}

// ReviewRun moves an IMPORTED run to REVIEWED.
func (s *PayrollService) ReviewRun(ctx context.Context, actor Actor, runID uuid.UUID) (*ReviewResult, error) {
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*ReviewResult, error) {
		run, err := s.repo.LockRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		switch run.Status {
		case domain.RunStatusReviewed, domain.RunStatusFinalized:
			return &ReviewResult{Run: run, Idempotent: true}, nil
		case domain.RunStatusImported:
		default:
			return nil, conflict(CodeInvalidStatus, fmt.Sprintf("run status %s cannot be reviewed", run.Status))
		}
		if s.settings.MakerChecker && run.ImportedBy != nil && *run.ImportedBy == actor.UserID {
			return nil, conflict(CodeMakerChecker, "a run cannot be reviewed by the user who imported it")
		}

		before := run
		now := s.now()
		run.Status = domain.RunStatusReviewed
		run.ReviewedBy = uuidPtr(actor.UserID)
		run.ReviewedAt = timePtr(now)
		run.UpdatedAt = now
		if err := s.repo.UpdateRun(txCtx, run); err != nil {
			return nil, err
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "RUN_REVIEW", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			OldValues: map[string]any{"status": before.Status},
			NewValues: map[string]any{"status": run.Status},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicRunReviewed, run.ID, map[string]any{"run_id": run.ID, "status": run.Status}); err != nil {
			return nil, err
		}
		return &ReviewResult{Run: run}, nil
	})
	if err := s.finish(ctx, "run_review", actor, res != nil && res.Idempotent, err); err != nil {
		return nil, err
	}
	return res, nil
}

type FinalizeOptions struct {
	// ForceFromImported lets an IMPORTED run skip the review step.
	ForceFromImported bool
}

type FinalizeResult struct {
	Run              domain.Run `json:"run"`
	JournalID        uuid.UUID  `json:"journal_id"`
	JournalNumber    string     `json:"journal_number"`
	IdempotentReplay bool       `json:"idempotent_replay"`
}

// accrualRejected carries the preview of a failed finalize out of the
// transaction so it can be audited after rollback.
type accrualRejected struct {
	svcErr  *ServiceError
	preview *AccrualPreview
}

func (e *accrualRejected) Error() string { return e.svcErr.Error() }

func (e *accrualRejected) Unwrap() error { return e.svcErr }

// FinalizeRun posts the accrual journal for a REVIEWED run exactly once.
func (s *PayrollService) FinalizeRun(ctx context.Context, actor Actor, runID uuid.UUID, opts FinalizeOptions) (*FinalizeResult, error) {
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*FinalizeResult, error) {
		run, err := s.repo.LockRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		if run.Status == domain.RunStatusFinalized && run.AccrualJournalID != nil {
			return &FinalizeResult{
				Run:              run,
				JournalID:        *run.AccrualJournalID,
				JournalNumber:    domain.AccrualJournalNumber(run.ID),
				IdempotentReplay: true,
			}, nil
		}
		switch {
		case run.Status == domain.RunStatusReviewed:
		case run.Status == domain.RunStatusImported && opts.ForceFromImported:
		default:
			return nil, conflict(CodeInvalidStatus, fmt.Sprintf("run status %s cannot be finalized", run.Status))
		}
		if run.RunType == domain.RunTypeReversal {
			return nil, conflict(CodeInvalidStatus, "reversal runs are finalized by the reversal itself")
		}
		if err := s.assertPeriod(txCtx, run, ActionPayrollFinalize); err != nil {
			return nil, err
		}

		// The preview is evaluated as if the run were already reviewed so a
		// forced finalize is judged on mappings and balance alone.
		previewRun := run
		previewRun.Status = domain.RunStatusReviewed
		preview, err := s.computeAccrual(txCtx, previewRun)
		if err != nil {
			return nil, err
		}
		if rejected := accrualRejection(preview); rejected != nil {
			return nil, rejected
		}

		bookID, err := s.repo.ResolveBook(txCtx, run.TenantID, run.LegalEntityID, s.settings.BookType)
		if err != nil {
			if isNotFound(err) {
				return nil, conflict(CodeFiscalPeriodNotOpen, "no accounting book configured for legal entity")
			}
			return nil, err
		}

		number := domain.AccrualJournalNumber(run.ID)
		existing, err := s.repo.FindJournalByNumber(txCtx, run.TenantID, bookID, number)
		if err != nil {
			return nil, err
		}
		replay := existing != nil
		journalID := uuid.Nil
		if replay {
			journalID = *existing
		} else {
			period, err := s.repo.FindFiscalPeriod(txCtx, run.TenantID, bookID, domain.Day(run.PayDate))
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if period == nil || period.Status != domain.FiscalPeriodOpen {
				return nil, conflict(CodeFiscalPeriodNotOpen, fmt.Sprintf("no open fiscal period for pay date %s", run.PayDate.Format("2006-01-02")))
			}
			journal := s.accrualJournal(actor, run, bookID, period.ID, number, preview)
			if !journal.Balanced() {
				return nil, conflict(CodeAccrualNotReady, "accrual journal is not balanced")
			}
			if err := s.repo.InsertJournal(txCtx, journal); err != nil {
				return nil, err
			}
			journalID = journal.ID
		}

		before := run
		now := s.now()
		run.Status = domain.RunStatusFinalized
		run.AccrualJournalID = uuidPtr(journalID)
		run.FinalizedBy = uuidPtr(actor.UserID)
		run.FinalizedAt = timePtr(now)
		run.UpdatedAt = now
		if err := s.repo.UpdateRun(txCtx, run); err != nil {
			return nil, err
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "RUN_FINALIZE", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			OldValues: map[string]any{"status": before.Status},
			NewValues: map[string]any{"status": run.Status, "journal_id": journalID, "journal_number": number},
			Meta:      map[string]any{"force_from_imported": opts.ForceFromImported, "journal_replay": replay},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicRunFinalized, run.ID, map[string]any{
			"run_id": run.ID, "journal_id": journalID, "journal_number": number,
		}); err != nil {
			return nil, err
		}
		return &FinalizeResult{Run: run, JournalID: journalID, JournalNumber: number, IdempotentReplay: replay}, nil
	})

	var rejected *accrualRejected
	if errors.As(err, &rejected) {
		s.auditOutsideTx(ctx, actor, AuditLogInsert{
			Action:     "VALIDATION",
			Result:     AuditResultValidation,
			EntityType: "payroll_run",
			EntityID:   runID,
			RunID:      uuidPtr(runID),
			Reason:     rejected.svcErr.Message,
			NewValues:  rejected.preview,
			Meta:       map[string]any{"operation": "RUN_FINALIZE", "error_code": rejected.svcErr.Code},
		})
		err = rejected.svcErr
	}
	if err := s.finish(ctx, "run_finalize", actor, res != nil && res.IdempotentReplay, err); err != nil {
		return nil, err
	}
	return res, nil
}

func accrualRejection(p *AccrualPreview) *accrualRejected {
	var svcErr *ServiceError
	switch {
	case len(p.MissingMappings) > 0:
		codes := make([]string, 0, len(p.MissingMappings))
		for _, m := range p.MissingMappings {
			codes = append(codes, m.ComponentCode+":"+string(m.Code))
		}
		svcErr = conflict(CodeAccrualNotReady, fmt.Sprintf("%d component mapping(s) missing or invalid", len(p.MissingMappings))).
			withDetails(map[string]any{"missing_mappings": codes})
	case len(p.PostingLines) == 0:
		svcErr = conflict(CodeAccrualNotReady, "run has no posting lines")
	case !p.Balanced:
		svcErr = conflict(CodeAccrualNotReady, fmt.Sprintf("accrual is not balanced: debit %s credit %s", p.TotalDebit, p.TotalCredit)).
			withDetails(map[string]any{"difference": p.Difference.String()})
	default:
		return nil
	}
	return &accrualRejected{svcErr: svcErr, preview: p}
}

func (s *PayrollService) accrualJournal(actor Actor, run domain.Run, bookID, periodID uuid.UUID, number string, p *AccrualPreview) domain.JournalEntry {
	lines := make([]domain.JournalLine, 0, len(p.PostingLines))
	for i, pl := range p.PostingLines {
		lines = append(lines, domain.JournalLine{
			LineNo:        i + 1,
			GLAccountID:   pl.GLAccountID,
			ComponentCode: pl.ComponentCode,
			Debit:         pl.Debit,
			Credit:        pl.Credit,
			Description:   pl.ComponentCode,
		})
	}
	return domain.JournalEntry{
		ID:             uuid.New(),
		TenantID:       run.TenantID,
		LegalEntityID:  run.LegalEntityID,
		BookID:         bookID,
		FiscalPeriodID: periodID,
		JournalNumber:  number,
		EntryDate:      domain.Day(run.PayDate),
		Currency:       run.Currency,
		SourceType:     domain.JournalSourcePayrollAccrual,
		SourceID:       run.ID,
		Description:    fmt.Sprintf("Payroll accrual %s %s", run.RunNo, run.Period),
		Status:         "POSTED",
		Lines:          lines,
		CreatedBy:      actor.UserID,
		CreatedAt:      s.now(),
	}
}
