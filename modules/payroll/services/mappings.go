package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
)

type ResolvedMapping struct {
	Mapping domain.ComponentMapping `json:"mapping"`
	Account domain.GLAccount        `json:"account"`
}

type MappingResolution struct {
	Resolved *ResolvedMapping     `json:"resolved,omitempty"`
	Issue    *domain.MappingIssue `json:"issue,omitempty"`
}

// resolveMapping finds the mapping active on q.AsOf and validates its
// account. Unusable mappings are reported as issues, never as errors.
func (s *PayrollService) resolveMapping(ctx context.Context, q MappingQuery, required domain.EntrySide) (MappingResolution, error) {
	issue := func(code domain.IssueCode, accountID *uuid.UUID) MappingResolution {
		return MappingResolution{Issue: &domain.MappingIssue{
			ComponentCode: q.ComponentCode,
			RequiredSide:  required,
			Code:          code,
			Message:       domain.IssueMessage(code, q.ComponentCode),
			GLAccountID:   accountID,
		}}
	}

	m, err := s.repo.FindComponentMapping(ctx, q)
	if err != nil {
		return MappingResolution{}, err
	}
	if m == nil {
		return issue(domain.IssueMappingMissing, nil), nil
	}
	if m.EntrySide != required {
		return issue(domain.IssueEntrySideMismatch, uuidPtr(m.GLAccountID)), nil
	}
	acct, err := s.repo.GetGLAccount(ctx, q.TenantID, m.GLAccountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return MappingResolution{}, err
	}
	if acct == nil {
		return issue(domain.IssueAccountInactive, uuidPtr(m.GLAccountID)), nil
	}
	if code := domain.CheckAccount(*acct, q.LegalEntityID); code != "" {
		return issue(code, uuidPtr(m.GLAccountID)), nil
	}
	return MappingResolution{Resolved: &ResolvedMapping{Mapping: *m, Account: *acct}}, nil
}

type ResolveMappingInput struct {
	LegalEntityID uuid.UUID
	ProviderCode  string
	Currency      string
	ComponentCode string
	AsOf          time.Time
	RequiredSide  domain.EntrySide
}

// ResolveComponentMapping exposes the resolver for diagnostics.
func (s *PayrollService) ResolveComponentMapping(ctx context.Context, actor Actor, in ResolveMappingInput) (MappingResolution, error) {
	if err := validateActor(actor); err != nil {
		return MappingResolution{}, err
	}
	if in.LegalEntityID == uuid.Nil || strings.TrimSpace(in.ComponentCode) == "" || !in.RequiredSide.Valid() {
		return MappingResolution{}, invalidArgument("legal_entity_id/component_code/required_side are required")
	}
	if in.AsOf.IsZero() {
		in.AsOf = s.now()
	}
	if err := s.assertLegalEntity(ctx, actor, in.LegalEntityID); err != nil {
		return MappingResolution{}, err
	}
	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (MappingResolution, error) {
		return s.resolveMapping(txCtx, MappingQuery{
			TenantID:      actor.TenantID,
			LegalEntityID: in.LegalEntityID,
			ProviderCode:  strings.TrimSpace(in.ProviderCode),
			Currency:      strings.ToUpper(strings.TrimSpace(in.Currency)),
			ComponentCode: strings.TrimSpace(in.ComponentCode),
			AsOf:          domain.Day(in.AsOf),
		}, in.RequiredSide)
	})
	return res, mapCollaboratorError(err)
}

type UpsertMappingInput struct {
	LegalEntityID uuid.UUID
	ProviderCode  string
	Currency      string
	ComponentCode string
	GLAccountID   uuid.UUID
	EntrySide     domain.EntrySide
	EffectiveFrom time.Time
}

type UpsertMappingResult struct {
	Mapping domain.ComponentMapping  `json:"mapping"`
	Closed  *domain.ComponentMapping `json:"closed,omitempty"`
}

// UpsertComponentMapping opens a new mapping from EffectiveFrom. The mapping
// that was open on that key is closed the day before; a later mapping on the
// same key is an overlap.
func (s *PayrollService) UpsertComponentMapping(ctx context.Context, actor Actor, in UpsertMappingInput) (*UpsertMappingResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	in.ProviderCode = strings.TrimSpace(in.ProviderCode)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.ComponentCode = strings.TrimSpace(in.ComponentCode)
	if in.LegalEntityID == uuid.Nil || in.ProviderCode == "" || in.ComponentCode == "" ||
		in.GLAccountID == uuid.Nil || in.EffectiveFrom.IsZero() {
		return nil, invalidArgument("legal_entity_id/provider_code/component_code/gl_account_id/effective_from are required")
	}
	if !in.EntrySide.Valid() {
		return nil, invalidArgument("entry_side must be DEBIT or CREDIT")
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := s.assertLegalEntity(ctx, actor, in.LegalEntityID); err != nil {
		return nil, err
	}
	from := domain.Day(in.EffectiveFrom)

	res, err := inTx(ctx, s, actor, func(txCtx context.Context) (*UpsertMappingResult, error) {
		acct, err := s.repo.GetGLAccount(txCtx, actor.TenantID, in.GLAccountID)
		if err != nil {
			return nil, err
		}
		if code := domain.CheckAccount(*acct, in.LegalEntityID); code != "" {
			return nil, newServiceError(http.StatusUnprocessableEntity, string(code), domain.IssueMessage(code, in.ComponentCode), nil)
		}

		existing, err := s.repo.LockComponentMappings(txCtx, actor.TenantID, in.LegalEntityID, in.ProviderCode, in.Currency, in.ComponentCode)
		if err != nil {
			return nil, err
		}
		out := &UpsertMappingResult{}
		for _, m := range existing {
			if !domain.Day(m.EffectiveFrom).Before(from) {
				return nil, conflict(CodeMappingOverlap, fmt.Sprintf("mapping %s already starts on or after %s", m.ID, from.Format(time.DateOnly)))
			}
			if m.EffectiveTo == nil || !domain.Day(*m.EffectiveTo).Before(from) {
				closed := m
				closed.EffectiveTo = timePtr(from.AddDate(0, 0, -1))
				if err := s.repo.UpdateComponentMapping(txCtx, closed); err != nil {
					return nil, err
				}
				out.Closed = &closed
			}
		}

		out.Mapping = domain.ComponentMapping{
			ID:            uuid.New(),
			TenantID:      actor.TenantID,
			LegalEntityID: in.LegalEntityID,
			ProviderCode:  in.ProviderCode,
			Currency:      in.Currency,
			ComponentCode: in.ComponentCode,
			GLAccountID:   in.GLAccountID,
			EntrySide:     in.EntrySide,
			EffectiveFrom: from,
			CreatedAt:     s.now(),
		}
		if err := s.repo.InsertComponentMapping(txCtx, out.Mapping); err != nil {
			return nil, err
		}
		if err := s.audit(txCtx, actor, AuditLogInsert{
			Action:     "MAPPING_UPSERT",
			EntityType: "payroll_component_mapping",
			EntityID:   out.Mapping.ID,
			OldValues:  out.Closed,
			NewValues:  out.Mapping,
		}); err != nil {
			return nil, err
		}
		if err := s.emit(txCtx, actor.TenantID, TopicMappingChanged, out.Mapping.ID, out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err := s.finish(ctx, "mapping_upsert", actor, false, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PayrollService) ListComponentMappings(ctx context.Context, actor Actor, f MappingFilter) ([]domain.ComponentMapping, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if f.LegalEntityID != nil {
		if err := s.assertLegalEntity(ctx, actor, *f.LegalEntityID); err != nil {
			return nil, err
		}
	}
	items, err := inTx(ctx, s, actor, func(txCtx context.Context) ([]domain.ComponentMapping, error) {
		return s.repo.ListComponentMappings(txCtx, actor.TenantID, f)
	})
	if err != nil {
		return nil, mapCollaboratorError(err)
	}
	return items, nil
}
