package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

const linkColumns = `
	k.id, k.tenant_id, k.run_id, k.liability_id, k.payment_batch_id, k.payment_batch_line_id,
	k.allocated_amount, k.settled_amount, k.status, k.beneficiary_snapshot_id, k.snapshot_status,
	k.created_at, k.released_at`

func linkDest(out *domain.PaymentLink) ([]any, func()) {
	var (
		id, tenantID, runID, liabilityID, batchID, lineID, snapshotID pgtype.UUID
		status, snapshotStatus                                        string
		createdAt, releasedAt                                         pgtype.Timestamptz
	)
	dest := []any{
		&id, &tenantID, &runID, &liabilityID, &batchID, &lineID,
		&out.AllocatedAmount, &out.SettledAmount, &status, &snapshotID, &snapshotStatus,
		&createdAt, &releasedAt,
	}
	return dest, func() {
		out.ID, out.TenantID, out.RunID, out.LiabilityID = asUUID(id), asUUID(tenantID), asUUID(runID), asUUID(liabilityID)
		out.PaymentBatchID, out.PaymentBatchLineID = asUUID(batchID), asUUID(lineID)
		out.Status = domain.LinkStatus(status)
		out.BeneficiarySnapshotID = nullableUUID(snapshotID)
		out.SnapshotStatus = domain.SnapshotStatus(snapshotStatus)
		out.CreatedAt, out.ReleasedAt = asTime(createdAt), nullableTime(releasedAt)
	}
}

// InsertPaymentLink returns the stored link and whether this call created it.
func (r *PayrollRepository) InsertPaymentLink(ctx context.Context, link domain.PaymentLink) (domain.PaymentLink, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.PaymentLink{}, false, err
	}
	var stored domain.PaymentLink
	dest, finish := linkDest(&stored)
	err = tx.QueryRow(ctx, `
		INSERT INTO payroll_payment_links AS k (
			id, tenant_id, run_id, liability_id, payment_batch_id, payment_batch_line_id,
			allocated_amount, settled_amount, status, beneficiary_snapshot_id, snapshot_status,
			created_at, released_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (liability_id, payment_batch_line_id) DO NOTHING
		RETURNING `+linkColumns,
		pgUUID(link.ID), pgUUID(link.TenantID), pgUUID(link.RunID), pgUUID(link.LiabilityID),
		pgUUID(link.PaymentBatchID), pgUUID(link.PaymentBatchLineID),
		link.AllocatedAmount, link.SettledAmount, string(link.Status),
		pgNullableUUID(link.BeneficiarySnapshotID), string(link.SnapshotStatus),
		link.CreatedAt.UTC(), pgNullableTime(link.ReleasedAt),
	).Scan(dest...)
	if err == nil {
		finish()
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.PaymentLink{}, false, gerrors.Wrap(err, "insert payment link")
	}

	err = tx.QueryRow(ctx, `
		SELECT `+linkColumns+`
		FROM payroll_payment_links k
		WHERE k.tenant_id = $1 AND k.liability_id = $2 AND k.payment_batch_line_id = $3
		`, pgUUID(link.TenantID), pgUUID(link.LiabilityID), pgUUID(link.PaymentBatchLineID),
	).Scan(dest...)
	if err != nil {
		return domain.PaymentLink{}, false, gerrors.Wrap(err, "select existing payment link")
	}
	finish()
	return stored, false, nil
}

func (r *PayrollRepository) UpdatePaymentLink(ctx context.Context, link domain.PaymentLink) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_payment_links
		SET settled_amount = $3,
			status = $4,
			beneficiary_snapshot_id = $5,
			snapshot_status = $6,
			released_at = $7
		WHERE tenant_id = $1 AND id = $2
		`,
		pgUUID(link.TenantID), pgUUID(link.ID), link.SettledAmount, string(link.Status),
		pgNullableUUID(link.BeneficiarySnapshotID), string(link.SnapshotStatus), pgNullableTime(link.ReleasedAt),
	)
	if err != nil {
		return gerrors.Wrap(err, "update payment link")
	}
	if tag.RowsAffected() == 0 {
		return notFound("payment link", link.ID)
	}
	return nil
}

func (r *PayrollRepository) ListPaymentLinksByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.PaymentLink, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+linkColumns+`
		FROM payroll_payment_links k
		WHERE k.tenant_id = $1 AND k.run_id = $2
		ORDER BY k.created_at, k.id
		`, pgUUID(tenantID), pgUUID(runID))
	if err != nil {
		return nil, gerrors.Wrap(err, "select payment links")
	}
	defer rows.Close()
	out := []domain.PaymentLink{}
	for rows.Next() {
		var link domain.PaymentLink
		dest, finish := linkDest(&link)
		if err := rows.Scan(dest...); err != nil {
			return nil, gerrors.Wrap(err, "scan payment link")
		}
		finish()
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PayrollRepository) ListSettlementCandidates(ctx context.Context, tenantID uuid.UUID, f services.SettlementFilter, lock bool) ([]domain.SettlementCandidate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	a := newArgs(f.Scope.Args)
	where := []string{
		"l.tenant_id = " + a.add(pgUUID(tenantID)),
		"l.status IN ('IN_BATCH', 'PARTIALLY_PAID')",
		"k.status <> 'RELEASED'",
	}
	if f.Scope.Clause != "" {
		where = append(where, f.Scope.Clause)
	}
	if f.RunID != nil {
		where = append(where, "l.run_id = "+a.add(pgUUID(*f.RunID)))
	}
	if f.LegalEntityID != nil {
		where = append(where, "l.legal_entity_id = "+a.add(pgUUID(*f.LegalEntityID)))
	}
	q := `SELECT ` + liabilityColumns + `, ` + linkColumns + `, r.payroll_period
		FROM payroll_liabilities l
		JOIN payroll_payment_links k ON k.liability_id = l.id AND k.payment_batch_id = l.reserved_payment_batch_id
		JOIN payroll_runs r ON r.id = l.run_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY l.run_id, l.created_at, l.id`
	if f.Limit > 0 {
		q += " LIMIT " + a.add(f.Limit)
	}
	if lock {
		q += " FOR UPDATE OF l, k"
	}
	rows, err := tx.Query(ctx, q, a.values...)
	if err != nil {
		return nil, gerrors.Wrap(err, "select settlement candidates")
	}
	defer rows.Close()

	out := []domain.SettlementCandidate{}
	for rows.Next() {
		var (
			c      domain.SettlementCandidate
			period string
		)
		lDest, lFinish := liabilityDest(&c.Liability)
		kDest, kFinish := linkDest(&c.Link)
		dest := append(append(lDest, kDest...), &period)
		if err := rows.Scan(dest...); err != nil {
			return nil, gerrors.Wrap(err, "scan settlement candidate")
		}
		lFinish()
		kFinish()
		c.RunPeriod = strings.TrimSpace(period)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const settlementColumns = `
	s.id, s.tenant_id, s.run_id, s.liability_id, s.link_id, s.payment_batch_id, s.source, s.settlement_key,
	s.settled_amount, s.evidence_count, s.evidence_matched_total, s.latest_match_at, s.created_at, s.updated_at`

func scanSettlement(row rowScanner) (domain.Settlement, error) {
	var (
		s                                                 domain.Settlement
		id, tenantID, runID, liabilityID, linkID, batchID pgtype.UUID
		source                                            string
		latest, createdAt, updatedAt                      pgtype.Timestamptz
	)
	if err := row.Scan(&id, &tenantID, &runID, &liabilityID, &linkID, &batchID, &source, &s.SettlementKey,
		&s.SettledAmount, &s.EvidenceCount, &s.EvidenceMatchedTotal, &latest, &createdAt, &updatedAt); err != nil {
		return domain.Settlement{}, err
	}
	s.ID, s.TenantID, s.RunID = asUUID(id), asUUID(tenantID), asUUID(runID)
	s.LiabilityID, s.LinkID, s.PaymentBatchID = asUUID(liabilityID), asUUID(linkID), asUUID(batchID)
	s.Source = domain.SettlementSource(source)
	s.LatestMatchAt = nullableTime(latest)
	s.CreatedAt, s.UpdatedAt = asTime(createdAt), asTime(updatedAt)
	return s, nil
}

// UpsertSettlement never lowers a stored settled amount; evidence columns
// always take the latest values.
func (r *PayrollRepository) UpsertSettlement(ctx context.Context, s domain.Settlement) (domain.Settlement, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.Settlement{}, false, err
	}
	var inserted bool
	stored, err := scanSettlement(rowWithFlag{
		row: tx.QueryRow(ctx, `
			INSERT INTO payroll_settlements AS s (
				id, tenant_id, run_id, liability_id, link_id, payment_batch_id, source, settlement_key,
				settled_amount, evidence_count, evidence_matched_total, latest_match_at, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (tenant_id, settlement_key) DO UPDATE SET
				settled_amount = GREATEST(s.settled_amount, EXCLUDED.settled_amount),
				evidence_count = EXCLUDED.evidence_count,
				evidence_matched_total = EXCLUDED.evidence_matched_total,
				latest_match_at = EXCLUDED.latest_match_at,
				updated_at = EXCLUDED.updated_at
			RETURNING `+settlementColumns+`, (xmax = 0)
			`,
			pgUUID(s.ID), pgUUID(s.TenantID), pgUUID(s.RunID), pgUUID(s.LiabilityID), pgUUID(s.LinkID),
			pgUUID(s.PaymentBatchID), string(s.Source), s.SettlementKey,
			s.SettledAmount, s.EvidenceCount, s.EvidenceMatchedTotal, pgNullableTime(s.LatestMatchAt),
			s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
		),
		flag: &inserted,
	})
	if err != nil {
		return domain.Settlement{}, false, gerrors.Wrap(err, "upsert settlement")
	}
	return stored, inserted, nil
}

// rowWithFlag appends a trailing boolean column to a settlement scan.
type rowWithFlag struct {
	row  pgx.Row
	flag *bool
}

func (r rowWithFlag) Scan(dest ...any) error {
	return r.row.Scan(append(dest, r.flag)...)
}

func (r *PayrollRepository) ListSettlementsByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Settlement, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM payroll_settlements s
		WHERE s.tenant_id = $1 AND s.run_id = $2
		ORDER BY s.settlement_key
		`, pgUUID(tenantID), pgUUID(runID))
	if err != nil {
		return nil, gerrors.Wrap(err, "select settlements")
	}
	defer rows.Close()
	out := []domain.Settlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan settlement")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
