package persistence

import (
	"context"
	"errors"
	"sort"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

// BeneficiaryStore reads employee bank accounts and freezes them into
// payroll_beneficiary_snapshots when a net-pay liability is batched.
type BeneficiaryStore struct{}

func NewBeneficiaryStore() *BeneficiaryStore {
	return &BeneficiaryStore{}
}

var _ services.BeneficiaryService = (*BeneficiaryStore)(nil)

func (s *BeneficiaryStore) AssertBeneficiarySetup(ctx context.Context, tenantID, legalEntityID uuid.UUID, employeeCodes []string) error {
	if len(employeeCodes) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	rows, err := tx.Query(ctx, `
		SELECT c.code
		FROM unnest($3::text[]) AS c(code)
		WHERE NOT EXISTS (
			SELECT 1 FROM employee_beneficiary_accounts a
			WHERE a.tenant_id = $1
				AND a.legal_entity_id = $2
				AND a.employee_code = c.code
				AND a.is_active
				AND a.account_number <> ''
		)
		`, pgUUID(tenantID), pgUUID(legalEntityID), employeeCodes)
	if err != nil {
		return gerrors.Wrap(err, "select missing beneficiaries")
	}
	defer rows.Close()
	var missing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return gerrors.Wrap(err, "scan missing beneficiary")
		}
		missing = append(missing, code)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &services.BeneficiaryMissingError{EmployeeCodes: missing}
	}
	return nil
}

func (s *BeneficiaryStore) AttachBeneficiarySnapshotToLink(ctx context.Context, tenantID, legalEntityID, linkID uuid.UUID, employeeCode string) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO payroll_beneficiary_snapshots (
			id, tenant_id, link_id, account_id, employee_code, bank_name, account_holder, account_number, routing_code
		)
		SELECT $4, a.tenant_id, $3, a.id, a.employee_code, a.bank_name, a.account_holder, a.account_number, a.routing_code
		FROM employee_beneficiary_accounts a
		WHERE a.tenant_id = $1 AND a.legal_entity_id = $2 AND a.employee_code = $5 AND a.is_active
		ON CONFLICT (link_id) DO UPDATE SET link_id = EXCLUDED.link_id
		RETURNING id
		`, pgUUID(tenantID), pgUUID(legalEntityID), pgUUID(linkID), pgUUID(uuid.New()), employeeCode).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, &services.BeneficiaryMissingError{EmployeeCodes: []string{employeeCode}}
	}
	if err != nil {
		return uuid.Nil, gerrors.Wrap(err, "insert beneficiary snapshot")
	}
	return asUUID(id), nil
}
