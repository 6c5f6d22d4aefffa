package domain

import (
	"time"

	"github.com/google/uuid"
)

type CorrectionType string

const (
	CorrectionRetro    CorrectionType = "RETRO"
	CorrectionOffCycle CorrectionType = "OFF_CYCLE"
	CorrectionReversal CorrectionType = "REVERSAL"
)

type CorrectionStatus string

const (
	CorrectionCreated  CorrectionStatus = "CREATED"
	CorrectionImported CorrectionStatus = "IMPORTED"
	CorrectionApplied  CorrectionStatus = "APPLIED"
)

type Correction struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	OriginalRunID   *uuid.UUID       `json:"original_run_id,omitempty"`
	CorrectionRunID uuid.UUID        `json:"correction_run_id"`
	CorrectionType  CorrectionType   `json:"correction_type"`
	Status          CorrectionStatus `json:"status"`
	IdempotencyKey  *string          `json:"idempotency_key,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	CreatedBy       uuid.UUID        `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
