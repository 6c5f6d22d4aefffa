package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type LinkStatus string

const (
	LinkLinked        LinkStatus = "LINKED"
	LinkPartiallyPaid LinkStatus = "PARTIALLY_PAID"
	LinkPaid          LinkStatus = "PAID"
	LinkReleased      LinkStatus = "RELEASED"
)

type SnapshotStatus string

const (
	SnapshotCaptured    SnapshotStatus = "CAPTURED"
	SnapshotNotRequired SnapshotStatus = "NOT_REQUIRED"
	SnapshotPending     SnapshotStatus = "PENDING"
)

type PaymentLink struct {
	ID                    uuid.UUID      `json:"id"`
	TenantID              uuid.UUID      `json:"tenant_id"`
	RunID                 uuid.UUID      `json:"run_id"`
	LiabilityID           uuid.UUID      `json:"liability_id"`
	PaymentBatchID        uuid.UUID      `json:"payment_batch_id"`
	PaymentBatchLineID    uuid.UUID      `json:"payment_batch_line_id"`
	AllocatedAmount       money.Amount   `json:"allocated_amount"`
	SettledAmount         money.Amount   `json:"settled_amount"`
	Status                LinkStatus     `json:"status"`
	BeneficiarySnapshotID *uuid.UUID     `json:"beneficiary_snapshot_id,omitempty"`
	SnapshotStatus        SnapshotStatus `json:"snapshot_status"`
	CreatedAt             time.Time      `json:"created_at"`
	ReleasedAt            *time.Time     `json:"released_at,omitempty"`
}

func (l PaymentLink) Active() bool {
	return l.Status != LinkReleased
}

// Payment batch and batch line statuses reported by the payments collaborator.
const (
	BatchStatusDraft     = "DRAFT"
	BatchStatusApproved  = "APPROVED"
	BatchStatusSent      = "SENT"
	BatchStatusPaid      = "PAID"
	BatchStatusCancelled = "CANCELLED"
	BatchStatusFailed    = "FAILED"
)

func BatchStatusTerminalFailure(status string) bool {
	return status == BatchStatusCancelled || status == BatchStatusFailed
}
