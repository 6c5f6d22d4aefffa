package persistence

import (
	"context"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

const scopeAction = "access"

// Authorizer is the part of *authz.Service the scope gate needs.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
	Check(ctx context.Context, req authz.Request) (bool, error)
	Mode() authz.Mode
}

// LegalEntityScopeGate grants access to a legal entity when the casbin policy
// allows the actor to "access" the object legal_entity:{id} in the tenant
// domain.
type LegalEntityScopeGate struct {
	authorizer Authorizer
}

func NewLegalEntityScopeGate(a Authorizer) *LegalEntityScopeGate {
	return &LegalEntityScopeGate{authorizer: a}
}

var _ services.ScopeGate = (*LegalEntityScopeGate)(nil)

func scopeRequest(actor services.Actor, scopeType string, scopeID uuid.UUID) authz.Request {
	return authz.NewRequest(
		authz.SubjectForUser(actor.UserID),
		authz.DomainFromTenant(actor.TenantID),
		authz.ScopeObject(scopeType, scopeID),
		scopeAction,
	)
}

func (g *LegalEntityScopeGate) AssertScopeAccess(ctx context.Context, actor services.Actor, scopeType string, scopeID uuid.UUID, fieldLabel string) error {
	if err := g.authorizer.Authorize(ctx, scopeRequest(actor, scopeType, scopeID)); err != nil {
		return fmt.Errorf("%s: %w", fieldLabel, err)
	}
	return nil
}

// BuildScopeFilter resolves the legal entities the actor may access and
// renders "column = ANY($n::uuid[])". Outside enforce mode no predicate is
// produced.
func (g *LegalEntityScopeGate) BuildScopeFilter(ctx context.Context, actor services.Actor, scopeType, column string, params *[]any) (string, error) {
	if g.authorizer.Mode() != authz.ModeEnforce {
		return "", nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return "", err
	}
	rows, err := tx.Query(ctx, `SELECT id FROM legal_entities WHERE tenant_id = $1 ORDER BY code`, pgUUID(actor.TenantID))
	if err != nil {
		return "", gerrors.Wrap(err, "select legal entities")
	}
	var all []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", gerrors.Wrap(err, "scan legal entity")
		}
		all = append(all, asUUID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	allowed := make([]uuid.UUID, 0, len(all))
	for _, id := range all {
		ok, err := g.authorizer.Check(ctx, scopeRequest(actor, scopeType, id))
		if err != nil {
			return "", err
		}
		if ok {
			allowed = append(allowed, id)
		}
	}
	*params = append(*params, pgUUIDArray(allowed))
	return fmt.Sprintf("%s = ANY($%d::uuid[])", column, len(*params)), nil
}
