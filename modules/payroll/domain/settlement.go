package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type SettlementSource string

const (
	SourceBankRecon       SettlementSource = "BANK_RECON"
	SourceBatchLineStatus SettlementSource = "BATCH_LINE_STATUS"
)

type Settlement struct {
	ID                   uuid.UUID        `json:"id"`
	TenantID             uuid.UUID        `json:"tenant_id"`
	RunID                uuid.UUID        `json:"run_id"`
	LiabilityID          uuid.UUID        `json:"liability_id"`
	LinkID               uuid.UUID        `json:"link_id"`
	PaymentBatchID       uuid.UUID        `json:"payment_batch_id"`
	Source               SettlementSource `json:"source"`
	SettlementKey        string           `json:"settlement_key"`
	SettledAmount        money.Amount     `json:"settled_amount"`
	EvidenceCount        int              `json:"evidence_count"`
	EvidenceMatchedTotal money.Amount     `json:"evidence_matched_total"`
	LatestMatchAt        *time.Time       `json:"latest_match_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

type SettlementAction string

const (
	ActionMarkPaid      SettlementAction = "MARK_PAID"
	ActionMarkPartial   SettlementAction = "MARK_PARTIAL"
	ActionReleaseToOpen SettlementAction = "RELEASE_TO_OPEN"
	ActionException     SettlementAction = "EXCEPTION"
	ActionNoop          SettlementAction = "NOOP"
)

func (a SettlementAction) Mutates() bool {
	return a == ActionMarkPaid || a == ActionMarkPartial || a == ActionReleaseToOpen
}

const (
	ReasonBankEvidence          = "BANK_EVIDENCE"
	ReasonBatchLinePaid         = "BATCH_LINE_PAID"
	ReasonBatchCancelled        = "BATCH_CANCELLED"
	ReasonCancelledAfterPartial = "BATCH_CANCELLED_AFTER_PARTIAL_SETTLEMENT"
	ReasonAlreadyPaid           = "ALREADY_PAID"
	ReasonInsufficientEvidence  = "INSUFFICIENT_EVIDENCE"
	ReasonNoNewEvidence         = "NO_NEW_EVIDENCE"
)

// BankEvidence aggregates active reconciliation matches for one batch.
type BankEvidence struct {
	MatchCount    int          `json:"match_count"`
	MatchedTotal  money.Amount `json:"matched_total"`
	LatestMatchAt *time.Time   `json:"latest_match_at,omitempty"`
}

type SettlementCandidate struct {
	Liability       Liability    `json:"liability"`
	Link            PaymentLink  `json:"link"`
	RunPeriod       string       `json:"run_period"`
	BatchStatus     string       `json:"batch_status"`
	BatchLineStatus string       `json:"batch_line_status"`
	BatchTotal      money.Amount `json:"batch_total"`
	Evidence        BankEvidence `json:"evidence"`
}

type SettlementOptions struct {
	AllowEvidenceFreeSettlement bool
}

type SettlementDecision struct {
	Action         SettlementAction `json:"action"`
	Reason         string           `json:"reason"`
	Source         SettlementSource `json:"source,omitempty"`
	Allocated      money.Amount     `json:"allocated_amount"`
	CurrentSettled money.Amount     `json:"current_settled"`
	TargetSettled  money.Amount     `json:"target_settled"`
}

// ClassifySettlement decides what the evidence for one linked liability
// implies. Rules apply in order: a failed batch or line releases or raises an
// exception, bank evidence settles pro rata of the batch total, a PAID line
// may settle without evidence when allowed, anything else is a no-op.
func ClassifySettlement(c SettlementCandidate, opts SettlementOptions) SettlementDecision {
	allocated := c.Link.AllocatedAmount
	current := c.Link.SettledAmount
	d := SettlementDecision{Allocated: allocated, CurrentSettled: current, TargetSettled: current}

	if BatchStatusTerminalFailure(c.BatchStatus) || BatchStatusTerminalFailure(c.BatchLineStatus) {
		if current.NearlyZero() {
			d.Action = ActionReleaseToOpen
			d.Reason = ReasonBatchCancelled
			d.TargetSettled = money.Zero
			return d
		}
		d.Action = ActionException
		d.Reason = ReasonCancelledAfterPartial
		return d
	}

	if current.NearlyEqual(allocated) || current.GreaterBeyondEpsilon(allocated) {
		d.Action = ActionNoop
		d.Reason = ReasonAlreadyPaid
		return d
	}

	var (
		target   money.Amount
		source   SettlementSource
		hasProof bool
	)
	if c.Evidence.MatchCount > 0 && c.BatchTotal.IsPositive() && c.Evidence.MatchedTotal.IsPositive() {
		target = money.Min(allocated.MulRatio(c.Evidence.MatchedTotal, c.BatchTotal), allocated)
		source = SourceBankRecon
		hasProof = true
	}
	if opts.AllowEvidenceFreeSettlement && c.BatchLineStatus == BatchStatusPaid {
		// A paid line only wins when it settles more than the bank evidence.
		if !hasProof || allocated.GreaterBeyondEpsilon(target) {
			target = allocated
			source = SourceBatchLineStatus
			hasProof = true
		}
	}
	if !hasProof {
		d.Action = ActionNoop
		d.Reason = ReasonInsufficientEvidence
		return d
	}
	if !target.GreaterBeyondEpsilon(current) {
		d.Action = ActionNoop
		d.Reason = ReasonNoNewEvidence
		d.Source = source
		return d
	}

	d.Source = source
	if target.NearlyEqual(allocated) {
		d.Action = ActionMarkPaid
		d.TargetSettled = allocated
	} else {
		d.Action = ActionMarkPartial
		d.TargetSettled = target
	}
	if source == SourceBankRecon {
		d.Reason = ReasonBankEvidence
	} else {
		d.Reason = ReasonBatchLinePaid
	}
	return d
}
