package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type PaymentBatchPreview struct {
	RunID          uuid.UUID          `json:"run_id"`
	Scope          domain.BatchScope  `json:"scope"`
	Liabilities    []domain.Liability `json:"liabilities"`
	Count          int                `json:"count"`
	TotalAmount    money.Amount       `json:"total_amount"`
	EmployeeCodes  []string           `json:"employee_codes"`
	IdempotencyKey string             `json:"idempotency_key"`
}

func buildBatchPreview(run domain.Run, scope domain.BatchScope, all []domain.Liability) *PaymentBatchPreview {
	p := &PaymentBatchPreview{
		RunID:          run.ID,
		Scope:          scope,
		Liabilities:    []domain.Liability{},
		EmployeeCodes:  []string{},
		IdempotencyKey: domain.DefaultBatchIdempotencyKey(run.ID, scope),
	}
	for _, l := range all {
		if l.Status != domain.LiabilityOpen || !scope.Includes(l.LiabilityGroup) {
			continue
		}
		p.Liabilities = append(p.Liabilities, l)
		p.TotalAmount = p.TotalAmount.Add(l.OutstandingAmount)
		if l.IsEmployee() && l.EmployeeCode != nil {
			p.EmployeeCodes = append(p.EmployeeCodes, *l.EmployeeCode)
		}
	}
	p.Count = len(p.Liabilities)
	sort.Strings(p.EmployeeCodes)
	return p
}

func (s *PayrollService) PreviewPaymentBatch(ctx context.Context, actor Actor, runID uuid.UUID, scope domain.BatchScope) (*PaymentBatchPreview, error) {
	if !scope.Valid() {
		return nil, invalidArgument("scope must be NET_PAY, STATUTORY or ALL")
	}
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	p, err := inTx(ctx, s, actor, func(txCtx context.Context) (*PaymentBatchPreview, error) {
		run, err := s.repo.GetRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		all, err := s.repo.ListLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		return buildBatchPreview(run, scope, all), nil
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	return p, nil
}

type CreateBatchInput struct {
	Scope          domain.BatchScope
	IdempotencyKey string
	BankAccountID  *uuid.UUID
	Notes          string
}

type CreatePaymentBatchResult struct {
	RunID              uuid.UUID               `json:"run_id"`
	Scope              domain.BatchScope       `json:"scope"`
	PaymentBatchID     uuid.UUID               `json:"payment_batch_id"`
	PaymentBatchStatus string                  `json:"payment_batch_status"`
	IdempotencyKey     string                  `json:"idempotency_key"`
	BatchReused        bool                    `json:"batch_reused"`
	LinkedCount        int                     `json:"linked_count"`
	TotalAmount        money.Amount            `json:"total_amount"`
	Links              []domain.PaymentLink    `json:"links"`
	Summary            domain.LiabilitySummary `json:"summary"`
	Idempotent         bool                    `json:"idempotent"`
}

// CreatePaymentBatchFromLiabilities reserves the OPEN liabilities in scope
// into a payment batch. Batch creation, reservation, link rows and
// beneficiary snapshots commit together.
func (s *PayrollService) CreatePaymentBatchFromLiabilities(ctx context.Context, actor Actor, runID uuid.UUID, in CreateBatchInput) (*CreatePaymentBatchResult, error) {
	if !in.Scope.Valid() {
		return nil, invalidArgument("scope must be NET_PAY, STATUTORY or ALL")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	derivedKey := in.IdempotencyKey == ""
	if derivedKey {
		in.IdempotencyKey = domain.DefaultBatchIdempotencyKey(runID, in.Scope)
	}
	if _, err := s.loadRunInScope(ctx, actor, runID); err != nil {
		return nil, err
	}
	if s.collab.Batches == nil {
		return nil, newServiceError(http.StatusInternalServerError, CodeInternal, errNoBatches.Error(), errNoBatches)
	}

	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*CreatePaymentBatchResult, error) {
		run, err := s.repo.LockRun(txCtx, actor.TenantID, runID)
		if err != nil {
			return nil, err
		}
		if !run.HasPostedAccrual() {
			return nil, conflict(CodeRunNotFinalized, "run must be FINALIZED with a posted accrual journal")
		}
		if run.IsReversed {
			return nil, conflict(CodeRunReversed, "run has been reversed")
		}
		if err := s.assertPeriod(txCtx, run, ActionPayrollPaymentBatch); err != nil {
			return nil, err
		}

		in.IdempotencyKey, err = s.resolveBatchKey(txCtx, run, in.IdempotencyKey, derivedKey)
		if err != nil {
			return nil, err
		}
		all, err := s.repo.ListLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		preview := buildBatchPreview(run, in.Scope, all)
		if preview.Count == 0 {
			return s.replayBatch(txCtx, run, in)
		}

		if len(preview.EmployeeCodes) > 0 && s.collab.Beneficiaries != nil {
			if err := s.collab.Beneficiaries.AssertBeneficiarySetup(txCtx, run.TenantID, run.LegalEntityID, preview.EmployeeCodes); err != nil {
				return nil, err
			}
		}

		batch, err := s.collab.Batches.CreatePaymentBatch(txCtx, batchInput(actor, run, in, preview))
		if err != nil {
			return nil, err
		}
		if err := assertBatchUsable(run, batch, in.IdempotencyKey); err != nil {
			return nil, err
		}

		locked, err := s.repo.LockLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]domain.Liability, len(locked))
		for _, l := range locked {
			byID[l.ID] = l
		}

		now := s.now()
		links := make([]domain.PaymentLink, 0, preview.Count)
		inserted := 0
		for _, candidate := range preview.Liabilities {
			l, ok := byID[candidate.ID]
			if !ok {
				return nil, fmt.Errorf("%w: liability %s", domain.ErrNotFound, candidate.ID)
			}
			line, ok := batch.LineFor(l.ID)
			if !ok {
				return nil, conflict(CodeBatchAmountMismatch, fmt.Sprintf("payment batch %s has no line for liability %s", batch.ID, l.ID))
			}
			if !line.Amount.NearlyEqual(l.OutstandingAmount) {
				return nil, conflict(CodeBatchAmountMismatch, fmt.Sprintf("liability %s amount %s does not match batch line amount %s", l.ID, l.OutstandingAmount, line.Amount))
			}
			before := l.Status
			if err := l.Reserve(batch.ID); err != nil {
				return nil, err
			}
			if before != l.Status {
				l.UpdatedAt = now
				if err := s.repo.UpdateLiability(txCtx, l); err != nil {
					return nil, err
				}
			}

			link := domain.PaymentLink{
				ID:                 uuid.New(),
				TenantID:           run.TenantID,
				RunID:              run.ID,
				LiabilityID:        l.ID,
				PaymentBatchID:     batch.ID,
				PaymentBatchLineID: line.ID,
				AllocatedAmount:    line.Amount,
				Status:             domain.LinkLinked,
				SnapshotStatus:     domain.SnapshotNotRequired,
				CreatedAt:          now,
			}
			if l.IsEmployee() {
				link.SnapshotStatus = domain.SnapshotPending
			}
			stored, created, err := s.repo.InsertPaymentLink(txCtx, link)
			if err != nil {
				return nil, err
			}
			if !created && !stored.Active() {
				return nil, conflict(CodeIdempotencyConflict, fmt.Sprintf("liability %s was already released from payment batch %s", l.ID, batch.ID)).
					withDetails(map[string]any{"payment_link_id": stored.ID, "payment_batch_id": batch.ID})
			}
			if created {
				inserted++
				if stored.SnapshotStatus == domain.SnapshotPending && s.collab.Beneficiaries != nil && l.EmployeeCode != nil {
					snapshotID, err := s.collab.Beneficiaries.AttachBeneficiarySnapshotToLink(txCtx, run.TenantID, run.LegalEntityID, stored.ID, *l.EmployeeCode)
					if err != nil {
						return nil, err
					}
					stored.BeneficiarySnapshotID = uuidPtr(snapshotID)
					stored.SnapshotStatus = domain.SnapshotCaptured
					if err := s.repo.UpdatePaymentLink(txCtx, stored); err != nil {
						return nil, err
					}
				}
			}
			links = append(links, stored)
		}

		after, err := s.repo.ListLiabilitiesByRun(txCtx, run.TenantID, run.ID)
		if err != nil {
			return nil, err
		}
		out := &CreatePaymentBatchResult{
			RunID:              run.ID,
			Scope:              in.Scope,
			PaymentBatchID:     batch.ID,
			PaymentBatchStatus: batch.Status,
			IdempotencyKey:     in.IdempotencyKey,
			BatchReused:        batch.Reused,
			LinkedCount:        len(links),
			TotalAmount:        preview.TotalAmount,
			Links:              links,
			Summary:            domain.Summarize(after),
			Idempotent:         inserted == 0,
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action: "PAYMENT_BATCH_LINK", EntityType: "payment_batch", EntityID: batch.ID, RunID: uuidPtr(run.ID),
			NewValues: map[string]any{"scope": in.Scope, "linked": len(links), "total_amount": preview.TotalAmount},
			Meta:      map[string]any{"idempotency_key": in.IdempotencyKey, "batch_reused": batch.Reused},
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, run.TenantID, TopicPaymentBatchLinked, batch.ID, map[string]any{
			"run_id": run.ID, "payment_batch_id": batch.ID, "scope": in.Scope, "linked": len(links),
		}); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		err = mapCollaboratorError(err)
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && blockedLinkCodes[svcErr.Code] {
			s.auditOutsideTx(ctx, actor, AuditLogInsert{
				Action:     "PAYMENT_BATCH_LINK",
				Result:     AuditResultBlocked,
				EntityType: "payroll_run",
				EntityID:   runID,
				RunID:      uuidPtr(runID),
				Reason:     svcErr.Message,
				Meta: map[string]any{
					"code":            svcErr.Code,
					"scope":           in.Scope,
					"idempotency_key": in.IdempotencyKey,
					"details":         svcErr.Details,
				},
			})
		}
	}
	if err := s.finish(ctx, "payment_batch_link", actor, res != nil && res.Idempotent, err); err != nil {
		return nil, err
	}
	return res, nil
}

// blockedLinkCodes are the linkage conflicts recorded as blocked attempts.
var blockedLinkCodes = map[string]bool{
	CodeLiabilityConsumed:   true,
	CodeBatchAmountMismatch: true,
	CodeBeneficiaryMissing:  true,
	CodeIdempotencyConflict: true,
}

// maxBatchAttempts bounds how many cancelled or failed batches a run and
// scope may accumulate under derived keys.
const maxBatchAttempts = 100

// resolveBatchKey picks the idempotency key for this call. An explicit key is
// used as given. A derived key skips past batches that were cancelled or
// failed, so a retry after release gets a fresh batch instead of the dead one.
func (s *PayrollService) resolveBatchKey(ctx context.Context, run domain.Run, base string, derived bool) (string, error) {
	if !derived {
		return base, nil
	}
	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		key := domain.BatchAttemptKey(base, attempt)
		batch, err := s.collab.Batches.FindPaymentBatchByKey(ctx, run.TenantID, key)
		if err != nil && !isNotFound(err) {
			return "", err
		}
		if batch == nil || !domain.BatchStatusTerminalFailure(batch.Status) {
			return key, nil
		}
	}
	return "", conflict(CodeIdempotencyConflict, fmt.Sprintf("run %s exhausted %d payment batch attempts for %s", run.ID, maxBatchAttempts, base))
}

// assertBatchUsable rejects a batch returned for the key that another run
// owns or that can no longer carry payments.
func assertBatchUsable(run domain.Run, batch PaymentBatch, key string) error {
	if batch.SourceID != run.ID {
		return conflict(CodeIdempotencyConflict, fmt.Sprintf("idempotency key %q belongs to another payroll run", key)).
			withDetails(map[string]any{"payment_batch_id": batch.ID})
	}
	if domain.BatchStatusTerminalFailure(batch.Status) {
		return conflict(CodeIdempotencyConflict, fmt.Sprintf("idempotency key %q belongs to a %s payment batch", key, batch.Status)).
			withDetails(map[string]any{"payment_batch_id": batch.ID})
	}
	return nil
}

// replayBatch answers a repeated call whose liabilities are already reserved
// into the batch registered under the same idempotency key.
func (s *PayrollService) replayBatch(ctx context.Context, run domain.Run, in CreateBatchInput) (*CreatePaymentBatchResult, error) {
	batch, err := s.collab.Batches.FindPaymentBatchByKey(ctx, run.TenantID, in.IdempotencyKey)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if batch == nil || domain.BatchStatusTerminalFailure(batch.Status) {
		return nil, conflict(CodeNothingToPay, fmt.Sprintf("no OPEN liabilities in scope %s", in.Scope))
	}
	if err := assertBatchUsable(run, *batch, in.IdempotencyKey); err != nil {
		return nil, err
	}
	links, err := s.repo.ListPaymentLinksByRun(ctx, run.TenantID, run.ID)
	if err != nil {
		return nil, err
	}
	mine := make([]domain.PaymentLink, 0, len(links))
	total := money.Zero
	for _, l := range links {
		if l.PaymentBatchID == batch.ID && l.Active() {
			mine = append(mine, l)
			total = total.Add(l.AllocatedAmount)
		}
	}
	if len(mine) == 0 {
		return nil, conflict(CodeNothingToPay, fmt.Sprintf("no OPEN liabilities in scope %s", in.Scope))
	}
	all, err := s.repo.ListLiabilitiesByRun(ctx, run.TenantID, run.ID)
	if err != nil {
		return nil, err
	}
	return &CreatePaymentBatchResult{
		RunID:              run.ID,
		Scope:              in.Scope,
		PaymentBatchID:     batch.ID,
		PaymentBatchStatus: batch.Status,
		IdempotencyKey:     in.IdempotencyKey,
		BatchReused:        true,
		LinkedCount:        len(mine),
		TotalAmount:        total,
		Links:              mine,
		Summary:            domain.Summarize(all),
		Idempotent:         true,
	}, nil
}

func batchInput(actor Actor, run domain.Run, in CreateBatchInput, p *PaymentBatchPreview) CreatePaymentBatchInput {
	lines := make([]PaymentBatchLineInput, 0, p.Count)
	for _, l := range p.Liabilities {
		line := PaymentBatchLineInput{
			SourceLineID: l.ID,
			PayeeType:    PayeeAuthority,
			PayeeRef:     string(l.LiabilityType),
			Amount:       l.OutstandingAmount,
			Description:  fmt.Sprintf("%s %s %s", run.RunNo, run.Period, l.LiabilityType),
		}
		if l.IsEmployee() && l.EmployeeCode != nil {
			line.PayeeType = PayeeEmployee
			line.PayeeRef = *l.EmployeeCode
		}
		lines = append(lines, line)
	}
	return CreatePaymentBatchInput{
		TenantID:       run.TenantID,
		LegalEntityID:  run.LegalEntityID,
		SourceType:     PaymentSourcePayrollRun,
		SourceID:       run.ID,
		IdempotencyKey: in.IdempotencyKey,
		Currency:       run.Currency,
		PaymentDate:    domain.Day(run.PayDate),
		BankAccountID:  in.BankAccountID,
		Notes:          in.Notes,
		CreatedBy:      actor.UserID,
		Lines:          lines,
	}
}

var errNoBatches = errors.New("payment batch service is not configured")
