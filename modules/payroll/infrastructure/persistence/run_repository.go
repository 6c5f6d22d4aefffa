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

// PayrollRepository is the pgx implementation of services.Repository. Every
// method runs on the transaction bound to ctx.
type PayrollRepository struct{}

func NewPayrollRepository() *PayrollRepository {
	return &PayrollRepository{}
}

var _ services.Repository = (*PayrollRepository)(nil)

const runColumns = `
	id, tenant_id, legal_entity_id, run_no, provider_code, payroll_period, pay_date, currency,
	status, run_type, original_run_id, accrual_journal_id, is_reversed, reversal_run_id,
	totals, employee_count, imported_by, imported_at, reviewed_by, reviewed_at,
	finalized_by, finalized_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		id, tenantID, leID                  pgtype.UUID
		original, accrual, reversal         pgtype.UUID
		importedBy, reviewedBy, finalizedBy pgtype.UUID
		importedAt, reviewedAt, finalizedAt pgtype.Timestamptz
		createdAt, updatedAt                pgtype.Timestamptz
		payDate                             pgtype.Date
		runNo, provider, period, currency   string
		status, runType                     string
		isReversed                          bool
		totals                              []byte
		employeeCount                       int
	)
	if err := row.Scan(
		&id, &tenantID, &leID, &runNo, &provider, &period, &payDate, &currency,
		&status, &runType, &original, &accrual, &isReversed, &reversal,
		&totals, &employeeCount, &importedBy, &importedAt, &reviewedBy, &reviewedAt,
		&finalizedBy, &finalizedAt, &createdAt, &updatedAt,
	); err != nil {
		return domain.Run{}, err
	}
	comps, err := unmarshalComponents(totals)
	if err != nil {
		return domain.Run{}, gerrors.Wrap(err, "decode run totals")
	}
	return domain.Run{
		ID:               asUUID(id),
		TenantID:         asUUID(tenantID),
		LegalEntityID:    asUUID(leID),
		RunNo:            runNo,
		ProviderCode:     provider,
		Period:           strings.TrimSpace(period),
		PayDate:          asDate(payDate),
		Currency:         strings.TrimSpace(currency),
		Status:           domain.RunStatus(status),
		RunType:          domain.RunType(runType),
		OriginalRunID:    nullableUUID(original),
		AccrualJournalID: nullableUUID(accrual),
		IsReversed:       isReversed,
		ReversalRunID:    nullableUUID(reversal),
		Totals:           comps,
		EmployeeCount:    employeeCount,
		ImportedBy:       nullableUUID(importedBy),
		ImportedAt:       nullableTime(importedAt),
		ReviewedBy:       nullableUUID(reviewedBy),
		ReviewedAt:       nullableTime(reviewedAt),
		FinalizedBy:      nullableUUID(finalizedBy),
		FinalizedAt:      nullableTime(finalizedAt),
		CreatedAt:        asTime(createdAt),
		UpdatedAt:        asTime(updatedAt),
	}, nil
}

func (r *PayrollRepository) getRun(ctx context.Context, tenantID, runID uuid.UUID, lock bool) (domain.Run, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.Run{}, err
	}
	q := `SELECT ` + runColumns + ` FROM payroll_runs WHERE tenant_id = $1 AND id = $2`
	if lock {
		q += ` FOR UPDATE`
	}
	run, err := scanRun(tx.QueryRow(ctx, q, pgUUID(tenantID), pgUUID(runID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, notFound("payroll run", runID)
	}
	if err != nil {
		return domain.Run{}, gerrors.Wrap(err, "select payroll run")
	}
	return run, nil
}

func (r *PayrollRepository) GetRun(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	return r.getRun(ctx, tenantID, runID, false)
}

func (r *PayrollRepository) LockRun(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	return r.getRun(ctx, tenantID, runID, true)
}

func (r *PayrollRepository) InsertRun(ctx context.Context, run domain.Run) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	totals, err := marshalComponents(run.Totals)
	if err != nil {
		return gerrors.Wrap(err, "encode run totals")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payroll_runs (
			id, tenant_id, legal_entity_id, run_no, provider_code, payroll_period, pay_date, currency,
			status, run_type, original_run_id, accrual_journal_id, is_reversed, reversal_run_id,
			totals, employee_count, imported_by, imported_at, reviewed_by, reviewed_at,
			finalized_by, finalized_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		`,
		pgUUID(run.ID),
		pgUUID(run.TenantID),
		pgUUID(run.LegalEntityID),
		run.RunNo,
		run.ProviderCode,
		run.Period,
		pgDate(run.PayDate),
		run.Currency,
		string(run.Status),
		string(run.RunType),
		pgNullableUUID(run.OriginalRunID),
		pgNullableUUID(run.AccrualJournalID),
		run.IsReversed,
		pgNullableUUID(run.ReversalRunID),
		totals,
		run.EmployeeCount,
		pgNullableUUID(run.ImportedBy),
		pgNullableTime(run.ImportedAt),
		pgNullableUUID(run.ReviewedBy),
		pgNullableTime(run.ReviewedAt),
		pgNullableUUID(run.FinalizedBy),
		pgNullableTime(run.FinalizedAt),
		run.CreatedAt.UTC(),
		run.UpdatedAt.UTC(),
	)
	if err != nil {
		return gerrors.Wrap(err, "insert payroll run")
	}
	return nil
}

func (r *PayrollRepository) UpdateRun(ctx context.Context, run domain.Run) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	totals, err := marshalComponents(run.Totals)
	if err != nil {
		return gerrors.Wrap(err, "encode run totals")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_runs SET
			run_no = $3,
			provider_code = $4,
			payroll_period = $5,
			pay_date = $6,
			currency = $7,
			status = $8,
			accrual_journal_id = $9,
			is_reversed = $10,
			reversal_run_id = $11,
			totals = $12::jsonb,
			employee_count = $13,
			imported_by = $14,
			imported_at = $15,
			reviewed_by = $16,
			reviewed_at = $17,
			finalized_by = $18,
			finalized_at = $19,
			updated_at = $20
		WHERE tenant_id = $1 AND id = $2
		`,
		pgUUID(run.TenantID),
		pgUUID(run.ID),
		run.RunNo,
		run.ProviderCode,
		run.Period,
		pgDate(run.PayDate),
		run.Currency,
		string(run.Status),
		pgNullableUUID(run.AccrualJournalID),
		run.IsReversed,
		pgNullableUUID(run.ReversalRunID),
		totals,
		run.EmployeeCount,
		pgNullableUUID(run.ImportedBy),
		pgNullableTime(run.ImportedAt),
		pgNullableUUID(run.ReviewedBy),
		pgNullableTime(run.ReviewedAt),
		pgNullableUUID(run.FinalizedBy),
		pgNullableTime(run.FinalizedAt),
		run.UpdatedAt.UTC(),
	)
	if err != nil {
		return gerrors.Wrap(err, "update payroll run")
	}
	if tag.RowsAffected() == 0 {
		return notFound("payroll run", run.ID)
	}
	return nil
}

func (r *PayrollRepository) ListRunLines(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.RunLine, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, tenant_id, run_id, line_no, employee_code, employee_name, cost_center, amounts, line_hash, created_at
		FROM payroll_run_lines
		WHERE tenant_id = $1 AND run_id = $2
		ORDER BY line_no
		`, pgUUID(tenantID), pgUUID(runID))
	if err != nil {
		return nil, gerrors.Wrap(err, "select run lines")
	}
	defer rows.Close()

	out := []domain.RunLine{}
	for rows.Next() {
		var (
			id, tID, rID pgtype.UUID
			line         domain.RunLine
			amounts      []byte
			createdAt    pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &tID, &rID, &line.LineNo, &line.EmployeeCode, &line.EmployeeName, &line.CostCenter, &amounts, &line.LineHash, &createdAt); err != nil {
			return nil, gerrors.Wrap(err, "scan run line")
		}
		line.ID, line.TenantID, line.RunID = asUUID(id), asUUID(tID), asUUID(rID)
		line.CreatedAt = asTime(createdAt)
		if line.Amounts, err = unmarshalComponents(amounts); err != nil {
			return nil, gerrors.Wrap(err, "decode run line amounts")
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PayrollRepository) InsertRunLines(ctx context.Context, tenantID uuid.UUID, lines []domain.RunLine) error {
	if len(lines) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		amounts, err := marshalComponents(l.Amounts)
		if err != nil {
			return gerrors.Wrap(err, "encode run line amounts")
		}
		batch.Queue(`
			INSERT INTO payroll_run_lines (id, tenant_id, run_id, line_no, employee_code, employee_name, cost_center, amounts, line_hash, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)
			`,
			pgUUID(l.ID), pgUUID(tenantID), pgUUID(l.RunID), l.LineNo, l.EmployeeCode, l.EmployeeName,
			l.CostCenter, amounts, l.LineHash, l.CreatedAt.UTC(),
		)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range lines {
		if _, err := br.Exec(); err != nil {
			return gerrors.Wrap(err, "insert run line")
		}
	}
	return nil
}

func (r *PayrollRepository) FindLegalEntityIDByCode(ctx context.Context, tenantID uuid.UUID, code string) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM legal_entities WHERE tenant_id = $1 AND code = $2`, pgUUID(tenantID), code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, notFound("legal entity", code)
	}
	if err != nil {
		return uuid.Nil, gerrors.Wrap(err, "select legal entity")
	}
	return asUUID(id), nil
}
