package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

// PeriodCloseGate reads period_close_locks. A row with a NULL action closes
// the period for every action.
type PeriodCloseGate struct{}

func NewPeriodCloseGate() *PeriodCloseGate {
	return &PeriodCloseGate{}
}

var _ services.PeriodGate = (*PeriodCloseGate)(nil)

func (g *PeriodCloseGate) AssertPeriodActionAllowed(ctx context.Context, tenantID, legalEntityID uuid.UUID, period string, action services.PeriodAction) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	var lockedAction pgtype.Text
	err = tx.QueryRow(ctx, `
		SELECT action
		FROM period_close_locks
		WHERE tenant_id = $1
			AND legal_entity_id = $2
			AND period = $3
			AND (action IS NULL OR action = $4)
		ORDER BY action NULLS FIRST
		LIMIT 1
		`, pgUUID(tenantID), pgUUID(legalEntityID), period, string(action)).Scan(&lockedAction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return gerrors.Wrap(err, "select period close lock")
	}
	reason := "period closed"
	if lockedAction.Valid {
		reason = "action locked"
	}
	return &services.PeriodLockedError{
		LegalEntityID: legalEntityID,
		Period:        period,
		Action:        action,
		Reason:        reason,
	}
}
