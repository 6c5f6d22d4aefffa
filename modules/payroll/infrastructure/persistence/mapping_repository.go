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

const mappingColumns = `
	id, tenant_id, legal_entity_id, provider_code, currency, component_code,
	gl_account_id, entry_side, effective_from, effective_to, created_at`

func scanMapping(row rowScanner) (domain.ComponentMapping, error) {
	var (
		id, tenantID, leID, accountID pgtype.UUID
		from, to                      pgtype.Date
		createdAt                     pgtype.Timestamptz
		m                             domain.ComponentMapping
		currency, side                string
	)
	if err := row.Scan(&id, &tenantID, &leID, &m.ProviderCode, &currency, &m.ComponentCode, &accountID, &side, &from, &to, &createdAt); err != nil {
		return domain.ComponentMapping{}, err
	}
	m.ID, m.TenantID, m.LegalEntityID, m.GLAccountID = asUUID(id), asUUID(tenantID), asUUID(leID), asUUID(accountID)
	m.Currency = strings.TrimSpace(currency)
	m.EntrySide = domain.EntrySide(side)
	m.EffectiveFrom = asDate(from)
	m.EffectiveTo = nullableDate(to)
	m.CreatedAt = asTime(createdAt)
	return m, nil
}

func collectMappings(rows pgx.Rows) ([]domain.ComponentMapping, error) {
	defer rows.Close()
	out := []domain.ComponentMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan component mapping")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindComponentMapping returns the latest mapping effective on q.AsOf, or nil.
func (r *PayrollRepository) FindComponentMapping(ctx context.Context, q services.MappingQuery) (*domain.ComponentMapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := scanMapping(tx.QueryRow(ctx, `
		SELECT `+mappingColumns+`
		FROM payroll_component_mappings
		WHERE tenant_id = $1
			AND legal_entity_id = $2
			AND provider_code = $3
			AND currency = $4
			AND component_code = $5
			AND effective_from <= $6
			AND (effective_to IS NULL OR effective_to >= $6)
		ORDER BY effective_from DESC
		LIMIT 1
		`,
		pgUUID(q.TenantID), pgUUID(q.LegalEntityID), q.ProviderCode, q.Currency, q.ComponentCode, pgDate(q.AsOf),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select component mapping")
	}
	return &m, nil
}

func (r *PayrollRepository) GetGLAccount(ctx context.Context, tenantID, accountID uuid.UUID) (*domain.GLAccount, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var (
		id, tID, leID pgtype.UUID
		a             domain.GLAccount
	)
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, code, name, is_active, is_postable, is_leaf
		FROM gl_accounts
		WHERE tenant_id = $1 AND id = $2
		`, pgUUID(tenantID), pgUUID(accountID),
	).Scan(&id, &tID, &leID, &a.Code, &a.Name, &a.IsActive, &a.IsPostable, &a.IsLeaf)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("gl account", accountID)
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select gl account")
	}
	a.ID, a.TenantID, a.LegalEntityID = asUUID(id), asUUID(tID), nullableUUID(leID)
	return &a, nil
}

func (r *PayrollRepository) ListComponentMappings(ctx context.Context, tenantID uuid.UUID, f services.MappingFilter) ([]domain.ComponentMapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	a := newArgs(nil)
	where := []string{"tenant_id = " + a.add(pgUUID(tenantID))}
	if f.LegalEntityID != nil {
		where = append(where, "legal_entity_id = "+a.add(pgUUID(*f.LegalEntityID)))
	}
	if f.ProviderCode != "" {
		where = append(where, "provider_code = "+a.add(f.ProviderCode))
	}
	if f.Currency != "" {
		where = append(where, "currency = "+a.add(f.Currency))
	}
	if f.ComponentCode != "" {
		where = append(where, "component_code = "+a.add(f.ComponentCode))
	}
	if f.AsOf != nil {
		p := a.add(pgDate(*f.AsOf))
		where = append(where, "effective_from <= "+p, "(effective_to IS NULL OR effective_to >= "+p+")")
	}
	rows, err := tx.Query(ctx, `
		SELECT `+mappingColumns+`
		FROM payroll_component_mappings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY legal_entity_id, provider_code, currency, component_code, effective_from
		`, a.values...)
	if err != nil {
		return nil, gerrors.Wrap(err, "select component mappings")
	}
	return collectMappings(rows)
}

func (r *PayrollRepository) LockComponentMappings(ctx context.Context, tenantID, legalEntityID uuid.UUID, providerCode, currency, componentCode string) ([]domain.ComponentMapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+mappingColumns+`
		FROM payroll_component_mappings
		WHERE tenant_id = $1 AND legal_entity_id = $2 AND provider_code = $3 AND currency = $4 AND component_code = $5
		ORDER BY effective_from
		FOR UPDATE
		`, pgUUID(tenantID), pgUUID(legalEntityID), providerCode, currency, componentCode)
	if err != nil {
		return nil, gerrors.Wrap(err, "lock component mappings")
	}
	return collectMappings(rows)
}

func (r *PayrollRepository) InsertComponentMapping(ctx context.Context, m domain.ComponentMapping) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO payroll_component_mappings (`+mappingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
		pgUUID(m.ID), pgUUID(m.TenantID), pgUUID(m.LegalEntityID), m.ProviderCode, m.Currency, m.ComponentCode,
		pgUUID(m.GLAccountID), string(m.EntrySide), pgDate(m.EffectiveFrom), pgNullableDate(m.EffectiveTo), m.CreatedAt.UTC(),
	); err != nil {
		return gerrors.Wrap(err, "insert component mapping")
	}
	return nil
}

func (r *PayrollRepository) UpdateComponentMapping(ctx context.Context, m domain.ComponentMapping) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_component_mappings
		SET gl_account_id = $3, entry_side = $4, effective_from = $5, effective_to = $6
		WHERE tenant_id = $1 AND id = $2
		`,
		pgUUID(m.TenantID), pgUUID(m.ID), pgUUID(m.GLAccountID), string(m.EntrySide), pgDate(m.EffectiveFrom), pgNullableDate(m.EffectiveTo),
	)
	if err != nil {
		return gerrors.Wrap(err, "update component mapping")
	}
	if tag.RowsAffected() == 0 {
		return notFound("component mapping", m.ID)
	}
	return nil
}
