package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const keySeparator = "|"

// keyNamespace seeds deterministic row ids derived from business keys.
var keyNamespace = uuid.MustParse("6f1b3c52-0c8e-4a55-9d0a-4f7d2b1f9a10")

func AccrualJournalNumber(runID uuid.UUID) string {
	return "PAYROLL-ACCRUAL-" + runID.String()
}

func ReversalJournalNumber(runID uuid.UUID) string {
	return "PAYROLL-REVERSAL-" + runID.String()
}

// DefaultBatchIdempotencyKey is used when the caller does not supply one.
func DefaultBatchIdempotencyKey(runID uuid.UUID, scope BatchScope) string {
	return strings.Join([]string{"PAYROLL_LIAB_BATCH", runID.String(), string(scope)}, keySeparator)
}

// BatchAttemptKey derives the default key of a later batch attempt once the
// earlier batches were cancelled or failed. Attempt 1 is the base key.
func BatchAttemptKey(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return base + keySeparator + strconv.Itoa(attempt)
}

type liabilitySource string

const (
	sourceNet       liabilitySource = "NET"
	sourceStatutory liabilitySource = "STAT"
)

// LiabilityKey identifies one liability of a run. Every field is either a
// UUID or a fixed enumeration, so the rendered form cannot collide.
type LiabilityKey struct {
	TenantID      uuid.UUID
	LegalEntityID uuid.UUID
	RunID         uuid.UUID
	source        liabilitySource
	ref           string
}

func NetLiabilityKey(tenantID, legalEntityID, runID, lineID uuid.UUID) LiabilityKey {
	return LiabilityKey{TenantID: tenantID, LegalEntityID: legalEntityID, RunID: runID, source: sourceNet, ref: lineID.String()}
}

func StatutoryLiabilityKey(tenantID, legalEntityID, runID uuid.UUID, t LiabilityType) LiabilityKey {
	return LiabilityKey{TenantID: tenantID, LegalEntityID: legalEntityID, RunID: runID, source: sourceStatutory, ref: string(t)}
}

func (k LiabilityKey) String() string {
	return strings.Join([]string{
		"PAYROLL_LIAB",
		k.TenantID.String(),
		k.LegalEntityID.String(),
		k.RunID.String(),
		string(k.source) + ":" + k.ref,
	}, keySeparator)
}

// ID derives a stable liability id from the key.
func (k LiabilityKey) ID() uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(k.String()))
}

type SettlementKey struct {
	TenantID       uuid.UUID
	RunID          uuid.UUID
	LiabilityID    uuid.UUID
	LinkID         uuid.UUID
	PaymentBatchID uuid.UUID
	Source         SettlementSource
}

func (k SettlementKey) String() string {
	return strings.Join([]string{
		"PAYROLL_SETTLE",
		k.TenantID.String(),
		k.RunID.String(),
		k.LiabilityID.String(),
		k.LinkID.String(),
		k.PaymentBatchID.String(),
		string(k.Source),
	}, keySeparator)
}

func (k SettlementKey) ID() uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(k.String()))
}
