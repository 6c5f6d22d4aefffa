package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	RequestID string
}

const ScopeLegalEntity = "legal_entity"

// ScopePredicate is a SQL fragment produced by a ScopeGate together with the
// positional arguments it references. Repositories place Args first.
type ScopePredicate struct {
	Clause string
	Args   []any
}

type MappingQuery struct {
	TenantID      uuid.UUID
	LegalEntityID uuid.UUID
	ProviderCode  string
	Currency      string
	ComponentCode string
	AsOf          time.Time
}

type MappingFilter struct {
	LegalEntityID *uuid.UUID
	ProviderCode  string
	Currency      string
	ComponentCode string
	AsOf          *time.Time
}

type LiabilityFilter struct {
	RunID         *uuid.UUID
	LegalEntityID *uuid.UUID
	Statuses      []domain.LiabilityStatus
	Group         *domain.LiabilityGroup
	Limit         int
	Offset        int
	Scope         ScopePredicate
}

type SettlementFilter struct {
	RunID         *uuid.UUID
	LegalEntityID *uuid.UUID
	Limit         int
	Scope         ScopePredicate
}

type RunRepository interface {
	GetRun(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error)
	LockRun(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error)
	InsertRun(ctx context.Context, run domain.Run) error
	UpdateRun(ctx context.Context, run domain.Run) error
	ListRunLines(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.RunLine, error)
	InsertRunLines(ctx context.Context, tenantID uuid.UUID, lines []domain.RunLine) error
	FindLegalEntityIDByCode(ctx context.Context, tenantID uuid.UUID, code string) (uuid.UUID, error)
}

type MappingRepository interface {
	FindComponentMapping(ctx context.Context, q MappingQuery) (*domain.ComponentMapping, error)
	GetGLAccount(ctx context.Context, tenantID, accountID uuid.UUID) (*domain.GLAccount, error)
	ListComponentMappings(ctx context.Context, tenantID uuid.UUID, f MappingFilter) ([]domain.ComponentMapping, error)
	LockComponentMappings(ctx context.Context, tenantID, legalEntityID uuid.UUID, providerCode, currency, componentCode string) ([]domain.ComponentMapping, error)
	InsertComponentMapping(ctx context.Context, m domain.ComponentMapping) error
	UpdateComponentMapping(ctx context.Context, m domain.ComponentMapping) error
}

type JournalRepository interface {
	ResolveBook(ctx context.Context, tenantID, legalEntityID uuid.UUID, bookType string) (uuid.UUID, error)
	FindFiscalPeriod(ctx context.Context, tenantID, bookID uuid.UUID, day time.Time) (*domain.FiscalPeriod, error)
	FindJournalByNumber(ctx context.Context, tenantID, bookID uuid.UUID, number string) (*uuid.UUID, error)
	InsertJournal(ctx context.Context, j domain.JournalEntry) error
	GetJournal(ctx context.Context, tenantID, journalID uuid.UUID) (domain.JournalEntry, error)
}

type LiabilityRepository interface {
	ListLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Liability, error)
	LockLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Liability, error)
	InsertLiabilities(ctx context.Context, items []domain.Liability) (int, error)
	UpdateLiability(ctx context.Context, l domain.Liability) error
	ListLiabilities(ctx context.Context, tenantID uuid.UUID, f LiabilityFilter) ([]domain.Liability, error)
}

type SettlementRepository interface {
	// InsertPaymentLink ignores duplicates and returns the stored link.
	InsertPaymentLink(ctx context.Context, link domain.PaymentLink) (domain.PaymentLink, bool, error)
	UpdatePaymentLink(ctx context.Context, link domain.PaymentLink) error
	ListPaymentLinksByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.PaymentLink, error)
	// ListSettlementCandidates returns IN_BATCH/PARTIALLY_PAID liabilities
	// with their active link; lock takes row locks on both.
	ListSettlementCandidates(ctx context.Context, tenantID uuid.UUID, f SettlementFilter, lock bool) ([]domain.SettlementCandidate, error)
	// UpsertSettlement keeps the greater settled amount per settlement key.
	UpsertSettlement(ctx context.Context, s domain.Settlement) (domain.Settlement, bool, error)
	ListSettlementsByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Settlement, error)
}

type CorrectionRepository interface {
	FindCorrectionByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*domain.Correction, error)
	FindCorrectionByRun(ctx context.Context, tenantID, correctionRunID uuid.UUID) (*domain.Correction, error)
	InsertCorrection(ctx context.Context, c domain.Correction) error
	UpdateCorrection(ctx context.Context, c domain.Correction) error
	ListCorrections(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Correction, error)
}

type AuditRepository interface {
	InsertAuditLog(ctx context.Context, a AuditLogInsert) error
}

type Repository interface {
	RunRepository
	MappingRepository
	JournalRepository
	LiabilityRepository
	SettlementRepository
	CorrectionRepository
	AuditRepository
}

// ScopeGate answers legal-entity scope questions for an actor.
type ScopeGate interface {
	AssertScopeAccess(ctx context.Context, actor Actor, scopeType string, scopeID uuid.UUID, fieldLabel string) error
	// BuildScopeFilter appends its arguments to params and returns a
	// predicate over column.
	BuildScopeFilter(ctx context.Context, actor Actor, scopeType, column string, params *[]any) (string, error)
}

type PeriodAction string

const (
	ActionPayrollFinalize       PeriodAction = "PAYROLL_FINALIZE"
	ActionPayrollLiabilityBuild PeriodAction = "PAYROLL_LIABILITY_BUILD"
	ActionPayrollPaymentBatch   PeriodAction = "PAYROLL_PAYMENT_BATCH"
	ActionPayrollSettlement     PeriodAction = "PAYROLL_SETTLEMENT"
	ActionPayrollReversal       PeriodAction = "PAYROLL_REVERSAL"
)

// PeriodGate returns a *PeriodLockedError when the action is not allowed.
type PeriodGate interface {
	AssertPeriodActionAllowed(ctx context.Context, tenantID, legalEntityID uuid.UUID, period string, action PeriodAction) error
}

const (
	PayeeEmployee  = "EMPLOYEE"
	PayeeAuthority = "AUTHORITY"

	PaymentSourcePayrollRun = "PAYROLL_RUN"
)

type PaymentBatchLineInput struct {
	SourceLineID uuid.UUID
	PayeeType    string
	PayeeRef     string
	Amount       money.Amount
	Description  string
}

type CreatePaymentBatchInput struct {
	TenantID       uuid.UUID
	LegalEntityID  uuid.UUID
	SourceType     string
	SourceID       uuid.UUID
	IdempotencyKey string
	Currency       string
	PaymentDate    time.Time
	BankAccountID  *uuid.UUID
	Notes          string
	CreatedBy      uuid.UUID
	Lines          []PaymentBatchLineInput
}

type PaymentBatchLine struct {
	ID           uuid.UUID    `json:"id"`
	SourceLineID uuid.UUID    `json:"source_line_id"`
	PayeeType    string       `json:"payee_type"`
	PayeeRef     string       `json:"payee_ref"`
	Amount       money.Amount `json:"amount"`
	Status       string       `json:"status"`
}

type PaymentBatch struct {
	ID             uuid.UUID          `json:"id"`
	TenantID       uuid.UUID          `json:"tenant_id"`
	LegalEntityID  uuid.UUID          `json:"legal_entity_id"`
	SourceType     string             `json:"source_type"`
	SourceID       uuid.UUID          `json:"source_id"`
	IdempotencyKey string             `json:"idempotency_key"`
	Status         string             `json:"status"`
	Currency       string             `json:"currency"`
	TotalAmount    money.Amount       `json:"total_amount"`
	Reused         bool               `json:"reused"`
	Lines          []PaymentBatchLine `json:"lines"`
}

func (b PaymentBatch) LineFor(sourceLineID uuid.UUID) (PaymentBatchLine, bool) {
	for _, l := range b.Lines {
		if l.SourceLineID == sourceLineID {
			return l, true
		}
	}
	return PaymentBatchLine{}, false
}

// PaymentBatchService is the shared payments collaborator.
type PaymentBatchService interface {
	// CreatePaymentBatch reuses an existing batch with the same key.
	CreatePaymentBatch(ctx context.Context, in CreatePaymentBatchInput) (PaymentBatch, error)
	FindPaymentBatchByKey(ctx context.Context, tenantID uuid.UUID, idempotencyKey string) (*PaymentBatch, error)
	LoadPaymentBatches(ctx context.Context, tenantID uuid.UUID, batchIDs []uuid.UUID) (map[uuid.UUID]PaymentBatch, error)
}

type BeneficiaryService interface {
	// AssertBeneficiarySetup returns *BeneficiaryMissingError naming the
	// employees without an active bank account.
	AssertBeneficiarySetup(ctx context.Context, tenantID, legalEntityID uuid.UUID, employeeCodes []string) error
	// AttachBeneficiarySnapshotToLink copies the current bank details and
	// returns the snapshot id.
	AttachBeneficiarySnapshotToLink(ctx context.Context, tenantID, legalEntityID, linkID uuid.UUID, employeeCode string) (uuid.UUID, error)
}

type BankEvidenceReader interface {
	ActiveMatchesByBatch(ctx context.Context, tenantID uuid.UUID, batchIDs []uuid.UUID) (map[uuid.UUID]domain.BankEvidence, error)
}

// LifecycleEvent is enqueued in the same transaction as the change it reports.
type LifecycleEvent struct {
	TenantID    uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     any
}

type EventSink interface {
	Enqueue(ctx context.Context, ev LifecycleEvent) error
}

// TxRunner executes fn inside one transaction bound to the returned context.
type TxRunner func(ctx context.Context, fn func(txCtx context.Context) error) error
