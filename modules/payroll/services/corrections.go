package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
)

const periodLayout = "2006-01"

func validatePeriod(period string) error {
	if _, err := time.Parse(periodLayout, period); err != nil {
		return invalidArgument(fmt.Sprintf("payroll_period %q must be YYYY-MM", period))
	}
	return nil
}

func optionalKey(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}

type ShellInput struct {
	Type            domain.CorrectionType
	OriginalRunID   *uuid.UUID
	LegalEntityCode string
	ProviderCode    string
	Period          string
	PayDate         *time.Time
	Currency        string
	RunNo           string
	IdempotencyKey  string
	Reason          string
}

type CorrectionShellResult struct {
	Run        domain.Run        `json:"run"`
	Correction domain.Correction `json:"correction"`
	Idempotent bool              `json:"idempotent"`
}

// CreateCorrectionShell creates an empty DRAFT run that a later import fills.
// RETRO shells copy their header from the finalized original run.
func (s *PayrollService) CreateCorrectionShell(ctx context.Context, actor Actor, in ShellInput) (*CorrectionShellResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	key := optionalKey(in.IdempotencyKey)

	var header domain.Run
	switch in.Type {
	case domain.CorrectionRetro:
		if in.OriginalRunID == nil {
			return nil, invalidArgument("original_run_id is required for RETRO corrections")
		}
		original, err := s.loadRunInScope(ctx, actor, *in.OriginalRunID)
		if err != nil {
			return nil, err
		}
		header = domain.Run{
			LegalEntityID: original.LegalEntityID,
			ProviderCode:  original.ProviderCode,
			Period:        original.Period,
			PayDate:       original.PayDate,
			Currency:      original.Currency,
			OriginalRunID: uuidPtr(original.ID),
		}
	case domain.CorrectionOffCycle:
		if strings.TrimSpace(in.LegalEntityCode) == "" || strings.TrimSpace(in.ProviderCode) == "" || in.PayDate == nil {
			return nil, invalidArgument("legal_entity_code, provider_code and pay_date are required for OFF_CYCLE corrections")
		}
		if err := validatePeriod(in.Period); err != nil {
			return nil, err
		}
		if err := validateCurrency(in.Currency); err != nil {
			return nil, err
		}
		legalEntityID, err := s.resolveLegalEntity(ctx, actor, in.LegalEntityCode)
		if err != nil {
			return nil, err
		}
		header = domain.Run{
			LegalEntityID: legalEntityID,
			ProviderCode:  strings.TrimSpace(in.ProviderCode),
			Period:        in.Period,
			PayDate:       domain.Day(*in.PayDate),
			Currency:      in.Currency,
		}
	default:
		return nil, invalidArgument("correction type must be RETRO or OFF_CYCLE")
	}
	if in.PayDate != nil {
		header.PayDate = domain.Day(*in.PayDate)
	}

	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*CorrectionShellResult, error) {
		if key != nil {
			existing, err := s.repo.FindCorrectionByIdempotencyKey(txCtx, actor.TenantID, *key)
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if existing != nil {
				if existing.CorrectionType != in.Type {
					return nil, conflict(CodeIdempotencyConflict, fmt.Sprintf("idempotency key already used by a %s correction", existing.CorrectionType))
				}
				run, err := s.repo.GetRun(txCtx, actor.TenantID, existing.CorrectionRunID)
				if err != nil {
					return nil, err
				}
				return &CorrectionShellResult{Run: run, Correction: *existing, Idempotent: true}, nil
			}
		}
		if in.Type == domain.CorrectionRetro {
			original, err := s.repo.LockRun(txCtx, actor.TenantID, *in.OriginalRunID)
			if err != nil {
				return nil, err
			}
			if original.Status != domain.RunStatusFinalized || original.RunType == domain.RunTypeReversal {
				return nil, conflict(CodeRunNotFinalized, "RETRO corrections must reference a FINALIZED run")
			}
			if original.IsReversed {
				return nil, conflict(CodeRunReversed, "original run has been reversed")
			}
		}

		now := s.now()
		run := header
		run.ID = uuid.New()
		run.TenantID = actor.TenantID
		run.Status = domain.RunStatusDraft
		run.RunType = domain.RunType(in.Type)
		run.RunNo = strings.TrimSpace(in.RunNo)
		if run.RunNo == "" {
			run.RunNo = fmt.Sprintf("%s-%s-%s", in.Type, run.Period, run.ID.String()[:8])
		}
		run.CreatedAt = now
		run.UpdatedAt = now
		if err := s.repo.InsertRun(txCtx, run); err != nil {
			return nil, err
		}
		correction := domain.Correction{
			ID:              uuid.New(),
			TenantID:        actor.TenantID,
			OriginalRunID:   run.OriginalRunID,
			CorrectionRunID: run.ID,
			CorrectionType:  in.Type,
			Status:          domain.CorrectionCreated,
			IdempotencyKey:  key,
			Reason:          in.Reason,
			CreatedBy:       actor.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.InsertCorrection(txCtx, correction); err != nil {
			return nil, err
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "CORRECTION_SHELL_CREATE", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			Reason:    in.Reason,
			NewValues: map[string]any{"run_type": run.RunType, "status": run.Status, "original_run_id": run.OriginalRunID},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicCorrectionCreated, run.ID, map[string]any{
			"correction_id": correction.ID, "correction_run_id": run.ID, "type": in.Type, "original_run_id": run.OriginalRunID,
		}); err != nil {
			return nil, err
		}
		return &CorrectionShellResult{Run: run, Correction: correction}, nil
	})
	if err := s.finish(ctx, "correction_shell", actor, res != nil && res.Idempotent, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PayrollService) resolveLegalEntity(ctx context.Context, actor Actor, code string) (uuid.UUID, error) {
	id, err := inTx(ctx, s, actor, func(txCtx context.Context) (uuid.UUID, error) {
		return s.repo.FindLegalEntityIDByCode(txCtx, actor.TenantID, strings.TrimSpace(code))
	})
	if err != nil {
		if isNotFound(err) {
			return uuid.Nil, newServiceError(http.StatusNotFound, CodeNotFound, fmt.Sprintf("legal entity %q not found", code), err)
		}
		return uuid.Nil, mapCollaboratorError(err)
	}
	if err := s.assertLegalEntity(ctx, actor, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ImportRow is one already-parsed provider row.
type ImportRow struct {
	EmployeeCode string
	EmployeeName string
	CostCenter   string
	Amounts      domain.Components
}

type ImportRunInput struct {
	// TargetRunID names a correction shell to fill. The header fields below
	// are then optional and must match the shell when given.
	TargetRunID     *uuid.UUID
	LegalEntityCode string
	ProviderCode    string
	Period          string
	PayDate         *time.Time
	Currency        string
	RunNo           string
	Rows            []ImportRow
}

type ImportRunResult struct {
	Run   domain.Run       `json:"run"`
	Lines []domain.RunLine `json:"lines"`
}

// ImportRun stores parsed rows as an IMPORTED run, either a new REGULAR run
// or a previously created correction shell.
func (s *PayrollService) ImportRun(ctx context.Context, actor Actor, in ImportRunInput) (*ImportRunResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if len(in.Rows) == 0 {
		return nil, invalidArgument("at least one row is required")
	}
	if err := duplicateRows(in.Rows); err != nil {
		return nil, err
	}
	if in.Period != "" {
		if err := validatePeriod(in.Period); err != nil {
			return nil, err
		}
	}
	if in.Currency != "" {
		if err := validateCurrency(in.Currency); err != nil {
			return nil, err
		}
	}

	var legalEntityID uuid.UUID
	if in.TargetRunID != nil {
		shell, err := s.loadRunInScope(ctx, actor, *in.TargetRunID)
		if err != nil {
			return nil, err
		}
		legalEntityID = shell.LegalEntityID
		if in.LegalEntityCode != "" {
			id, err := s.resolveLegalEntity(ctx, actor, in.LegalEntityCode)
			if err != nil {
				return nil, err
			}
			if id != shell.LegalEntityID {
				return nil, conflict(CodeShellMismatch, "legal entity does not match the correction shell").
					withDetails(map[string]any{"field": "legal_entity_code"})
			}
		}
	} else {
		if in.LegalEntityCode == "" || in.ProviderCode == "" || in.Period == "" || in.Currency == "" || in.PayDate == nil || strings.TrimSpace(in.RunNo) == "" {
			return nil, invalidArgument("legal_entity_code, provider_code, payroll_period, pay_date, currency and run_no are required")
		}
		id, err := s.resolveLegalEntity(ctx, actor, in.LegalEntityCode)
		if err != nil {
			return nil, err
		}
		legalEntityID = id
	}

	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*ImportRunResult, error) {
		now := s.now()
		var run domain.Run
		if in.TargetRunID != nil {
			shell, err := s.repo.LockRun(txCtx, actor.TenantID, *in.TargetRunID)
			if err != nil {
				return nil, err
			}
			if shell.Status != domain.RunStatusDraft || !shell.RunType.IsCorrection() {
				return nil, conflict(CodeInvalidStatus, fmt.Sprintf("run %s is not a DRAFT correction shell", shell.ID))
			}
			if mismatch := shellMismatch(shell, in); len(mismatch) > 0 {
				return nil, conflict(CodeShellMismatch, "import header does not match the correction shell").
					withDetails(map[string]any{"fields": mismatch})
			}
			run = shell
		} else {
			run = domain.Run{
				ID:            uuid.New(),
				TenantID:      actor.TenantID,
				LegalEntityID: legalEntityID,
				RunNo:         strings.TrimSpace(in.RunNo),
				ProviderCode:  strings.TrimSpace(in.ProviderCode),
				Period:        in.Period,
				PayDate:       domain.Day(*in.PayDate),
				Currency:      in.Currency,
				RunType:       domain.RunTypeRegular,
				CreatedAt:     now,
			}
		}

		lines := make([]domain.RunLine, 0, len(in.Rows))
		for i, row := range in.Rows {
			lines = append(lines, domain.RunLine{
				ID:           uuid.New(),
				TenantID:     actor.TenantID,
				RunID:        run.ID,
				LineNo:       i + 1,
				EmployeeCode: strings.TrimSpace(row.EmployeeCode),
				EmployeeName: strings.TrimSpace(row.EmployeeName),
				CostCenter:   strings.TrimSpace(row.CostCenter),
				Amounts:      row.Amounts,
				LineHash:     domain.LineHash(row.EmployeeCode, row.EmployeeName, row.CostCenter, row.Amounts),
				CreatedAt:    now,
			})
		}
		run.Totals = domain.SumLines(lines)
		run.EmployeeCount = len(lines)
		run.Status = domain.RunStatusImported
		run.ImportedBy = uuidPtr(actor.UserID)
		run.ImportedAt = timePtr(now)
		run.UpdatedAt = now

		if in.TargetRunID != nil {
			if err := s.repo.UpdateRun(txCtx, run); err != nil {
				return nil, err
			}
		} else if err := s.repo.InsertRun(txCtx, run); err != nil {
			return nil, err
		}
		if err := s.repo.InsertRunLines(txCtx, actor.TenantID, lines); err != nil {
			return nil, err
		}
		if in.TargetRunID != nil {
			correction, err := s.repo.FindCorrectionByRun(txCtx, actor.TenantID, run.ID)
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if correction != nil {
				correction.Status = domain.CorrectionImported
				correction.UpdatedAt = now
				if err := s.repo.UpdateCorrection(txCtx, *correction); err != nil {
					return nil, err
				}
			}
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "RUN_IMPORT", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			NewValues: map[string]any{"status": run.Status, "employee_count": run.EmployeeCount, "net_pay": run.Totals.NetPay},
			Meta:      map[string]any{"run_type": run.RunType, "shell": in.TargetRunID != nil},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicRunImported, run.ID, map[string]any{
			"run_id": run.ID, "run_type": run.RunType, "employee_count": run.EmployeeCount,
		}); err != nil {
			return nil, err
		}
		return &ImportRunResult{Run: run, Lines: lines}, nil
	})
	if err := s.finish(ctx, "run_import", actor, false, err); err != nil {
		return nil, err
	}
	return res, nil
}

func duplicateRows(rows []ImportRow) error {
	byCode := map[string]int{}
	byHash := map[string]int{}
	for i, row := range rows {
		code := strings.TrimSpace(row.EmployeeCode)
		if code == "" {
			return invalidArgument(fmt.Sprintf("row %d: employee_code is required", i+1))
		}
		hash := domain.LineHash(row.EmployeeCode, row.EmployeeName, row.CostCenter, row.Amounts)
		prev, dupCode := byCode[code]
		if !dupCode {
			prev, dupCode = byHash[hash]
		}
		if dupCode {
			return newServiceError(http.StatusUnprocessableEntity, CodeDuplicateRow,
				fmt.Sprintf("row %d duplicates row %d", i+1, prev), nil).
				withDetails(map[string]any{"row": i + 1, "duplicate_of": prev, "employee_code": code})
		}
		byCode[code] = i + 1
		byHash[hash] = i + 1
	}
	return nil
}

func shellMismatch(shell domain.Run, in ImportRunInput) []string {
	var fields []string
	if in.ProviderCode != "" && strings.TrimSpace(in.ProviderCode) != shell.ProviderCode {
		fields = append(fields, "provider_code")
	}
	if in.Period != "" && in.Period != shell.Period {
		fields = append(fields, "payroll_period")
	}
	if in.Currency != "" && in.Currency != shell.Currency {
		fields = append(fields, "currency")
	}
	if in.PayDate != nil && !domain.Day(*in.PayDate).Equal(domain.Day(shell.PayDate)) {
		fields = append(fields, "pay_date")
	}
	if in.RunNo != "" && strings.TrimSpace(in.RunNo) != shell.RunNo {
		fields = append(fields, "run_no")
	}
	return fields
}

type ReverseInput struct {
	Reason         string
	IdempotencyKey string
}

type ReverseRunResult struct {
	OriginalRun          domain.Run `json:"original_run"`
	ReversalRun          domain.Run `json:"reversal_run"`
	ReversalJournalID    uuid.UUID  `json:"reversal_journal_id"`
	CancelledLiabilities int        `json:"cancelled_liabilities"`
	IdempotentReplay     bool       `json:"idempotent_replay"`
}

// ReverseRun posts the mirror of a finalized run's accrual, records a
// negated REVERSAL run and cancels the liabilities still OPEN. Any liability
// already in payment blocks the reversal.
func (s *PayrollService) ReverseRun(ctx context.Context, actor Actor, runID uuid.UUID, in ReverseInput) (*ReverseRunResult, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, invalidArgument("reason is required")
	}
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	key := optionalKey(in.IdempotencyKey)

	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*ReverseRunResult, error) {
		run, err := s.repo.LockRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		if run.IsReversed && run.ReversalRunID != nil {
			reversal, err := s.repo.GetRun(txCtx, run.TenantID, *run.ReversalRunID)
			if err != nil {
				return nil, err
			}
			out := &ReverseRunResult{OriginalRun: run, ReversalRun: reversal, IdempotentReplay: true}
			if reversal.AccrualJournalID != nil {
				out.ReversalJournalID = *reversal.AccrualJournalID
			}
			return out, nil
		}
		if key != nil {
			existing, err := s.repo.FindCorrectionByIdempotencyKey(txCtx, run.TenantID, *key)
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if existing != nil {
				return nil, conflict(CodeIdempotencyConflict, "idempotency key already used by another correction")
			}
		}
		if run.RunType == domain.RunTypeReversal {
			return nil, conflict(CodeInvalidStatus, "reversal runs cannot be reversed")
		}
		if !run.HasPostedAccrual() {
			return nil, conflict(CodeRunNotFinalized, "only FINALIZED runs with a posted accrual journal can be reversed")
		}
		if err := s.assertPeriod(txCtx, run, ActionPayrollReversal); err != nil {
			return nil, err
		}

		liabilities, err := s.repo.LockLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		var blocking []map[string]any
		for _, l := range liabilities {
			if l.Status.Progressed() {
				blocking = append(blocking, map[string]any{"liability_id": l.ID, "status": l.Status})
			}
		}
		if len(blocking) > 0 {
			return nil, conflict(CodeReversalBlocked, fmt.Sprintf(
				"%d liabilities are already in payment; release the payment batch or use a RETRO correction instead", len(blocking))).
				withDetails(map[string]any{"liabilities": blocking})
		}

		original, err := s.repo.GetJournal(txCtx, run.TenantID, *run.AccrualJournalID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		reversal := domain.Run{
			ID:            uuid.New(),
			TenantID:      run.TenantID,
			LegalEntityID: run.LegalEntityID,
			RunNo:         run.RunNo + "-REV",
			ProviderCode:  run.ProviderCode,
			Period:        run.Period,
			PayDate:       run.PayDate,
			Currency:      run.Currency,
			Status:        domain.RunStatusFinalized,
			RunType:       domain.RunTypeReversal,
			OriginalRunID: uuidPtr(run.ID),
			Totals:        run.Totals.Neg(),
			EmployeeCount: run.EmployeeCount,
			FinalizedBy:   uuidPtr(actor.UserID),
			FinalizedAt:   timePtr(now),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		journalID, err := s.postReversalJournal(txCtx, actor, run, reversal.ID, original)
		if err != nil {
			return nil, err
		}
		reversal.AccrualJournalID = uuidPtr(journalID)
		if err := s.repo.InsertRun(txCtx, reversal); err != nil {
			return nil, err
		}

		lines, err := s.repo.ListRunLines(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		negated := make([]domain.RunLine, 0, len(lines))
		for _, l := range lines {
			amounts := l.Amounts.Neg()
			negated = append(negated, domain.RunLine{
				ID:           uuid.New(),
				TenantID:     run.TenantID,
				RunID:        reversal.ID,
				LineNo:       l.LineNo,
				EmployeeCode: l.EmployeeCode,
				EmployeeName: l.EmployeeName,
				CostCenter:   l.CostCenter,
				Amounts:      amounts,
				LineHash:     domain.LineHash(l.EmployeeCode, l.EmployeeName, l.CostCenter, amounts),
				CreatedAt:    now,
			})
		}
		if len(negated) > 0 {
			if err := s.repo.InsertRunLines(txCtx, run.TenantID, negated); err != nil {
				return nil, err
			}
		}

		cancelled := 0
		for _, l := range liabilities {
			if l.Status != domain.LiabilityOpen {
				continue
			}
			l.Status = domain.LiabilityCancelled
			l.ReservedPaymentBatchID = nil
			l.UpdatedAt = now
			if err := s.repo.UpdateLiability(txCtx, l); err != nil {
				return nil, err
			}
			cancelled++
		}

		run.IsReversed = true
		run.ReversalRunID = uuidPtr(reversal.ID)
		run.UpdatedAt = now
		if err := s.repo.UpdateRun(txCtx, run); err != nil {
			return nil, err
		}
		if err := s.repo.InsertCorrection(txCtx, domain.Correction{
			ID:              uuid.New(),
			TenantID:        run.TenantID,
			OriginalRunID:   uuidPtr(run.ID),
			CorrectionRunID: reversal.ID,
			CorrectionType:  domain.CorrectionReversal,
			Status:          domain.CorrectionApplied,
			IdempotencyKey:  key,
			Reason:          in.Reason,
			CreatedBy:       actor.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}); err != nil {
			return nil, err
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "RUN_REVERSE", EntityType: "payroll_run", EntityID: run.ID, RunID: uuidPtr(run.ID),
			Reason:    in.Reason,
			OldValues: map[string]any{"is_reversed": false},
			NewValues: map[string]any{"is_reversed": true, "reversal_run_id": reversal.ID, "reversal_journal_id": journalID, "cancelled_liabilities": cancelled},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicRunReversed, run.ID, map[string]any{
			"run_id": run.ID, "reversal_run_id": reversal.ID, "reversal_journal_id": journalID,
		}); err != nil {
			return nil, err
		}
		return &ReverseRunResult{
			OriginalRun:          run,
			ReversalRun:          reversal,
			ReversalJournalID:    journalID,
			CancelledLiabilities: cancelled,
		}, nil
	})

	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code == CodeReversalBlocked {
		s.auditOutsideTx(ctx, actor, AuditLogInsert{
			Action:     "RUN_REVERSE",
			Result:     AuditResultBlocked,
			EntityType: "payroll_run",
			EntityID:   runID,
			RunID:      uuidPtr(runID),
			Reason:     svcErr.Message,
			Meta:       svcErr.Details,
		})
	}
	if err := s.finish(ctx, "run_reverse", actor, res != nil && res.IdempotentReplay, err); err != nil {
		return nil, err
	}
	return res, nil
}

// postReversalJournal posts the mirrored accrual dated on the original pay
// date, or returns the journal already posted under the reversal number.
func (s *PayrollService) postReversalJournal(ctx context.Context, actor Actor, run domain.Run, reversalRunID uuid.UUID, original domain.JournalEntry) (uuid.UUID, error) {
	number := domain.ReversalJournalNumber(run.ID)
	existing, err := s.repo.FindJournalByNumber(ctx, run.TenantID, original.BookID, number)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return *existing, nil
	}
	entryDate := domain.Day(run.PayDate)
	period, err := s.repo.FindFiscalPeriod(ctx, run.TenantID, original.BookID, entryDate)
	if err != nil && !isNotFound(err) {
		return uuid.Nil, err
	}
	if period == nil || period.Status != domain.FiscalPeriodOpen {
		return uuid.Nil, conflict(CodeFiscalPeriodNotOpen, fmt.Sprintf("no open fiscal period for %s", entryDate.Format("2006-01-02")))
	}
	journal := domain.JournalEntry{
		ID:                uuid.New(),
		TenantID:          run.TenantID,
		LegalEntityID:     run.LegalEntityID,
		BookID:            original.BookID,
		FiscalPeriodID:    period.ID,
		JournalNumber:     number,
		EntryDate:         entryDate,
		Currency:          original.Currency,
		SourceType:        domain.JournalSourcePayrollReversal,
		SourceID:          reversalRunID,
		ReversesJournalID: uuidPtr(original.ID),
		Description:       fmt.Sprintf("Payroll reversal %s %s", run.RunNo, run.Period),
		Status:            "POSTED",
		Lines:             original.Reversed(),
		CreatedBy:         actor.UserID,
		CreatedAt:         s.now(),
	}
	if !journal.Balanced() {
		return uuid.Nil, conflict(CodeAccrualNotReady, "reversal journal is not balanced")
	}
	if err := s.repo.InsertJournal(ctx, journal); err != nil {
		return uuid.Nil, err
	}
	return journal.ID, nil
}

func (s *PayrollService) ListRunCorrections(ctx context.Context, actor Actor, runID uuid.UUID) ([]domain.Correction, error) {
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	items, err := inTx(ctx, s, actor, func(txCtx context.Context) ([]domain.Correction, error) {
		return s.repo.ListCorrections(txCtx, actor.TenantID, runID)
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	if items == nil {
		items = []domain.Correction{}
	}
	return items, nil
}
