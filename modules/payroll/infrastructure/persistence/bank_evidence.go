package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

// BankEvidenceReader aggregates active bank reconciliation matches per batch.
type BankEvidenceReader struct{}

func NewBankEvidenceReader() *BankEvidenceReader {
	return &BankEvidenceReader{}
}

var _ services.BankEvidenceReader = (*BankEvidenceReader)(nil)

func (r *BankEvidenceReader) ActiveMatchesByBatch(ctx context.Context, tenantID uuid.UUID, batchIDs []uuid.UUID) (map[uuid.UUID]domain.BankEvidence, error) {
	out := make(map[uuid.UUID]domain.BankEvidence, len(batchIDs))
	if len(batchIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT payment_batch_id, count(*), COALESCE(sum(matched_amount), 0), max(matched_at)
		FROM bank_reconciliation_matches
		WHERE tenant_id = $1 AND payment_batch_id = ANY($2) AND is_active
		GROUP BY payment_batch_id
		`, pgUUID(tenantID), pgUUIDArray(batchIDs))
	if err != nil {
		return nil, gerrors.Wrap(err, "select bank reconciliation matches")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			batchID pgtype.UUID
			latest  pgtype.Timestamptz
			ev      domain.BankEvidence
		)
		if err := rows.Scan(&batchID, &ev.MatchCount, &ev.MatchedTotal, &latest); err != nil {
			return nil, gerrors.Wrap(err, "scan bank evidence")
		}
		ev.LatestMatchAt = nullableTime(latest)
		out[asUUID(batchID)] = ev
	}
	return out, rows.Err()
}
