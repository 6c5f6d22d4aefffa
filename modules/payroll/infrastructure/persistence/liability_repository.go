package persistence

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

const liabilityColumns = `
	l.id, l.tenant_id, l.legal_entity_id, l.run_id, l.liability_type, l.liability_group,
	l.employee_code, l.employee_name, l.run_line_id, l.payable_component_code, l.payable_gl_account_id,
	l.currency, l.amount, l.settled_amount, l.outstanding_amount, l.status,
	l.reserved_payment_batch_id, l.liability_key, l.created_at, l.updated_at`

// liabilityDest returns scan targets for liabilityColumns and a finisher
// that copies the nullable columns into out.
func liabilityDest(out *domain.Liability) ([]any, func()) {
	var (
		id, tenantID, leID, runID, lineID, accountID, batchID pgtype.UUID
		employeeCode, employeeName                            pgtype.Text
		currency, liabilityType, group, status                string
		createdAt, updatedAt                                  pgtype.Timestamptz
	)
	dest := []any{
		&id, &tenantID, &leID, &runID, &liabilityType, &group,
		&employeeCode, &employeeName, &lineID, &out.PayableComponentCode, &accountID,
		&currency, &out.Amount, &out.SettledAmount, &out.OutstandingAmount, &status,
		&batchID, &out.LiabilityKey, &createdAt, &updatedAt,
	}
	return dest, func() {
		out.ID, out.TenantID, out.LegalEntityID, out.RunID = asUUID(id), asUUID(tenantID), asUUID(leID), asUUID(runID)
		out.LiabilityType = domain.LiabilityType(liabilityType)
		out.LiabilityGroup = domain.LiabilityGroup(group)
		out.EmployeeCode, out.EmployeeName = nullableText(employeeCode), nullableText(employeeName)
		out.RunLineID = nullableUUID(lineID)
		out.PayableGLAccountID = asUUID(accountID)
		out.Currency = strings.TrimSpace(currency)
		out.Status = domain.LiabilityStatus(status)
		out.ReservedPaymentBatchID = nullableUUID(batchID)
		out.CreatedAt, out.UpdatedAt = asTime(createdAt), asTime(updatedAt)
	}
}

func collectLiabilities(rows pgx.Rows) ([]domain.Liability, error) {
	defer rows.Close()
	out := []domain.Liability{}
	for rows.Next() {
		var l domain.Liability
		dest, finish := liabilityDest(&l)
		if err := rows.Scan(dest...); err != nil {
			return nil, gerrors.Wrap(err, "scan liability")
		}
		finish()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PayrollRepository) listLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID, lock bool) ([]domain.Liability, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + liabilityColumns + `
		FROM payroll_liabilities l
		WHERE l.tenant_id = $1 AND l.run_id = $2
		ORDER BY l.liability_group, l.employee_code NULLS LAST, l.liability_type, l.id`
	if lock {
		q += ` FOR UPDATE`
	}
	rows, err := tx.Query(ctx, q, pgUUID(tenantID), pgUUID(runID))
	if err != nil {
		return nil, gerrors.Wrap(err, "select liabilities by run")
	}
	return collectLiabilities(rows)
}

func (r *PayrollRepository) ListLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Liability, error) {
	return r.listLiabilitiesByRun(ctx, tenantID, runID, false)
}

func (r *PayrollRepository) LockLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Liability, error) {
	return r.listLiabilitiesByRun(ctx, tenantID, runID, true)
}

// InsertLiabilities skips rows whose liability key already exists and returns
// the number of rows written.
func (r *PayrollRepository) InsertLiabilities(ctx context.Context, items []domain.Liability) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for _, l := range items {
		batch.Queue(`
			INSERT INTO payroll_liabilities (
				id, tenant_id, legal_entity_id, run_id, liability_type, liability_group,
				employee_code, employee_name, run_line_id, payable_component_code, payable_gl_account_id,
				currency, amount, settled_amount, outstanding_amount, status,
				reserved_payment_batch_id, liability_key, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (tenant_id, liability_key) DO NOTHING
			`,
			pgUUID(l.ID), pgUUID(l.TenantID), pgUUID(l.LegalEntityID), pgUUID(l.RunID),
			string(l.LiabilityType), string(l.LiabilityGroup),
			pgNullableText(l.EmployeeCode), pgNullableText(l.EmployeeName), pgNullableUUID(l.RunLineID),
			l.PayableComponentCode, pgUUID(l.PayableGLAccountID),
			l.Currency, l.Amount, l.SettledAmount, l.OutstandingAmount, string(l.Status),
			pgNullableUUID(l.ReservedPaymentBatchID), l.LiabilityKey, l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
		)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for range items {
		tag, err := br.Exec()
		if err != nil {
			return 0, gerrors.Wrap(err, "insert liability")
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PayrollRepository) UpdateLiability(ctx context.Context, l domain.Liability) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_liabilities
		SET settled_amount = $3,
			outstanding_amount = $4,
			status = $5,
			reserved_payment_batch_id = $6,
			updated_at = $7
		WHERE tenant_id = $1 AND id = $2
		`,
		pgUUID(l.TenantID), pgUUID(l.ID), l.SettledAmount, l.OutstandingAmount, string(l.Status),
		pgNullableUUID(l.ReservedPaymentBatchID), l.UpdatedAt.UTC(),
	)
	if err != nil {
		return gerrors.Wrap(err, "update liability")
	}
	if tag.RowsAffected() == 0 {
		return notFound("liability", l.ID)
	}
	return nil
}

func (r *PayrollRepository) ListLiabilities(ctx context.Context, tenantID uuid.UUID, f services.LiabilityFilter) ([]domain.Liability, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	a := newArgs(f.Scope.Args)
	where := []string{"l.tenant_id = " + a.add(pgUUID(tenantID))}
	if f.Scope.Clause != "" {
		where = append(where, f.Scope.Clause)
	}
	if f.RunID != nil {
		where = append(where, "l.run_id = "+a.add(pgUUID(*f.RunID)))
	}
	if f.LegalEntityID != nil {
		where = append(where, "l.legal_entity_id = "+a.add(pgUUID(*f.LegalEntityID)))
	}
	if f.Group != nil {
		where = append(where, "l.liability_group = "+a.add(string(*f.Group)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "l.status = ANY("+a.add(statuses)+"::text[])")
	}
	q := `SELECT ` + liabilityColumns + `
		FROM payroll_liabilities l
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY l.created_at, l.id`
	if f.Limit > 0 {
		q += " LIMIT " + a.add(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + a.add(f.Offset)
	}
	rows, err := tx.Query(ctx, q, a.values...)
	if err != nil {
		return nil, gerrors.Wrap(err, "select liabilities")
	}
	return collectLiabilities(rows)
}
