package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
)

const (
	CodeInvalidArgument       = "PAYROLL_INVALID_ARGUMENT"
	CodeNoTenant              = "PAYROLL_NO_TENANT"
	CodeNotFound              = "PAYROLL_NOT_FOUND"
	CodeInvalidStatus         = "PAYROLL_INVALID_STATUS"
	CodeAccrualNotReady       = "PAYROLL_ACCRUAL_NOT_READY"
	CodeFiscalPeriodNotOpen   = "FISCAL_PERIOD_NOT_OPEN"
	CodeRunNotFinalized       = "PAYROLL_RUN_NOT_FINALIZED"
	CodeRunReversed           = "PAYROLL_RUN_REVERSED"
	CodePayableMappingInvalid = "PAYROLL_PAYABLE_MAPPING_INVALID"
	CodeNothingToPay          = "PAYROLL_NOTHING_TO_PAY"
	CodeBeneficiaryMissing    = "BENEFICIARY_SETUP_MISSING"
	CodeBatchAmountMismatch   = "PAYROLL_BATCH_AMOUNT_MISMATCH"
	CodeLiabilityConsumed     = "PAYROLL_LIABILITY_CONSUMED"
	CodeReversalBlocked       = "PAYROLL_REVERSAL_BLOCKED"
	CodeShellMismatch         = "PAYROLL_SHELL_MISMATCH"
	CodeDuplicateRow          = "PAYROLL_DUPLICATE_ROW"
	CodeMakerChecker          = "PAYROLL_MAKER_CHECKER_VIOLATION"
	CodeMappingOverlap        = "PAYROLL_MAPPING_OVERLAP"
	CodeIdempotencyConflict   = "PAYROLL_IDEMPOTENCY_CONFLICT"
	CodeRunConflict           = "PAYROLL_RUN_CONFLICT"
	CodePeriodLocked          = "PERIOD_LOCKED"
	CodeInternal              = "PAYROLL_INTERNAL"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func (e *ServiceError) HTTPStatus() int { return e.Status }

func (e *ServiceError) ErrorCode() string { return e.Code }

func (e *ServiceError) ErrorDetails() map[string]any { return e.Details }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func (e *ServiceError) withDetails(details map[string]any) *ServiceError {
	e.Details = details
	return e
}

func invalidArgument(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, CodeInvalidArgument, message, nil)
}

func conflict(code, message string) *ServiceError {
	recordWriteConflict(code)
	return newServiceError(http.StatusConflict, code, message, nil)
}

// PeriodLockedError is returned by period gates and passed to callers as is.
type PeriodLockedError struct {
	LegalEntityID uuid.UUID
	Period        string
	Action        PeriodAction
	Reason        string
}

func (e *PeriodLockedError) Error() string {
	msg := fmt.Sprintf("period %s is locked for %s", e.Period, e.Action)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *PeriodLockedError) HTTPStatus() int { return http.StatusConflict }

func (e *PeriodLockedError) ErrorCode() string { return CodePeriodLocked }

func (e *PeriodLockedError) ErrorDetails() map[string]any {
	return map[string]any{
		"legal_entity_id": e.LegalEntityID.String(),
		"period":          e.Period,
		"action":          string(e.Action),
	}
}

// BeneficiaryMissingError names employees without usable bank details.
type BeneficiaryMissingError struct {
	EmployeeCodes []string
}

func (e *BeneficiaryMissingError) Error() string {
	return fmt.Sprintf("beneficiary bank setup missing for %d employee(s)", len(e.EmployeeCodes))
}

// mapCollaboratorError keeps coded errors intact and classifies the rest.
func mapCollaboratorError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	var locked *PeriodLockedError
	if errors.As(err, &locked) {
		return err
	}
	if errors.Is(err, authz.ErrForbidden) {
		return newServiceError(http.StatusForbidden, authz.ErrorCodeForbidden, "scope access denied", err)
	}
	var missing *BeneficiaryMissingError
	if errors.As(err, &missing) {
		recordWriteConflict(CodeBeneficiaryMissing)
		return newServiceError(http.StatusConflict, CodeBeneficiaryMissing, missing.Error(), err).
			withDetails(map[string]any{"employees": missing.EmployeeCodes})
	}
	if errors.Is(err, domain.ErrLiabilityConsumed) {
		recordWriteConflict(CodeLiabilityConsumed)
		return newServiceError(http.StatusConflict, CodeLiabilityConsumed, err.Error(), err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return newServiceError(http.StatusNotFound, CodeNotFound, "not found", err)
	}
	return mapPgErrorToServiceError(err)
}
