package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

func (r *PayrollRepository) InsertAuditLog(ctx context.Context, a services.AuditLogInsert) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	oldValuesJSON, oldValid, err := a.MarshalOldValues()
	if err != nil {
		return err
	}
	newValuesJSON, err := a.MarshalNewValues()
	if err != nil {
		return err
	}
	metaJSON, err := a.MarshalMeta()
	if err != nil {
		return err
	}
	var old pgtype.Text
	if oldValid {
		old = pgtype.Text{String: oldValuesJSON, Valid: true}
	}
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payroll_audit_logs (
			id,
			tenant_id,
			request_id,
			transaction_time,
			actor_id,
			action,
			result,
			entity_type,
			entity_id,
			run_id,
			old_values,
			new_values,
			meta
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12::jsonb,$13::jsonb)
		`,
		pgUUID(id),
		pgUUID(a.TenantID),
		a.RequestID,
		a.TransactionTime.UTC(),
		pgUUID(a.ActorID),
		a.Action,
		a.Result,
		a.EntityType,
		pgUUID(a.EntityID),
		pgNullableUUID(a.RunID),
		old,
		newValuesJSON,
		metaJSON,
	); err != nil {
		return gerrors.Wrap(err, "insert payroll audit log")
	}
	return nil
}
