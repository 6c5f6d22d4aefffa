package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

const correctionColumns = `
	id, tenant_id, original_run_id, correction_run_id, correction_type, status,
	idempotency_key, reason, created_by, created_at, updated_at`

func scanCorrection(row rowScanner) (domain.Correction, error) {
	var (
		c                                          domain.Correction
		id, tenantID, originalID, runID, createdBy pgtype.UUID
		correctionType, status                     string
		key                                        pgtype.Text
		createdAt, updatedAt                       pgtype.Timestamptz
	)
	if err := row.Scan(&id, &tenantID, &originalID, &runID, &correctionType, &status,
		&key, &c.Reason, &createdBy, &createdAt, &updatedAt); err != nil {
		return domain.Correction{}, err
	}
	c.ID, c.TenantID, c.CorrectionRunID, c.CreatedBy = asUUID(id), asUUID(tenantID), asUUID(runID), asUUID(createdBy)
	c.OriginalRunID = nullableUUID(originalID)
	c.CorrectionType = domain.CorrectionType(correctionType)
	c.Status = domain.CorrectionStatus(status)
	c.IdempotencyKey = nullableText(key)
	c.CreatedAt, c.UpdatedAt = asTime(createdAt), asTime(updatedAt)
	return c, nil
}

func (r *PayrollRepository) findCorrection(ctx context.Context, where string, args ...any) (*domain.Correction, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCorrection(tx.QueryRow(ctx, `SELECT `+correctionColumns+` FROM payroll_run_corrections WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select correction")
	}
	return &c, nil
}

func (r *PayrollRepository) FindCorrectionByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*domain.Correction, error) {
	return r.findCorrection(ctx, `tenant_id = $1 AND idempotency_key = $2`, pgUUID(tenantID), key)
}

func (r *PayrollRepository) FindCorrectionByRun(ctx context.Context, tenantID, correctionRunID uuid.UUID) (*domain.Correction, error) {
	return r.findCorrection(ctx, `tenant_id = $1 AND correction_run_id = $2`, pgUUID(tenantID), pgUUID(correctionRunID))
}

func (r *PayrollRepository) InsertCorrection(ctx context.Context, c domain.Correction) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO payroll_run_corrections (`+correctionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
		pgUUID(c.ID), pgUUID(c.TenantID), pgNullableUUID(c.OriginalRunID), pgUUID(c.CorrectionRunID),
		string(c.CorrectionType), string(c.Status), pgNullableText(c.IdempotencyKey), c.Reason,
		pgUUID(c.CreatedBy), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	); err != nil {
		return gerrors.Wrap(err, "insert correction")
	}
	return nil
}

func (r *PayrollRepository) UpdateCorrection(ctx context.Context, c domain.Correction) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_run_corrections SET status = $3, reason = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
		`, pgUUID(c.TenantID), pgUUID(c.ID), string(c.Status), c.Reason, c.UpdatedAt.UTC())
	if err != nil {
		return gerrors.Wrap(err, "update correction")
	}
	if tag.RowsAffected() == 0 {
		return notFound("correction", c.ID)
	}
	return nil
}

// ListCorrections returns corrections where runID is either side.
func (r *PayrollRepository) ListCorrections(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Correction, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+correctionColumns+`
		FROM payroll_run_corrections
		WHERE tenant_id = $1 AND (original_run_id = $2 OR correction_run_id = $2)
		ORDER BY created_at, id
		`, pgUUID(tenantID), pgUUID(runID))
	if err != nil {
		return nil, gerrors.Wrap(err, "select corrections")
	}
	defer rows.Close()
	out := []domain.Correction{}
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan correction")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
