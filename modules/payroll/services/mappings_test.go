package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
)

func TestUpsertComponentMapping_ClosesPriorMapping(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	acct := h.addMapping("SCRATCH", domain.SideDebit)
	h.removeMapping("SCRATCH")
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var prior domain.ComponentMapping
	for _, m := range h.world.mappings {
		if m.ComponentCode == domain.ComponentBaseSalaryExpense {
			prior = m
		}
	}

	res, err := h.svc.UpsertComponentMapping(ctx, h.reviewer, UpsertMappingInput{
		LegalEntityID: h.leID,
		ProviderCode:  testProvider,
		Currency:      "usd",
		ComponentCode: domain.ComponentBaseSalaryExpense,
		GLAccountID:   acct.ID,
		EntrySide:     domain.SideDebit,
		EffectiveFrom: from,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
	require.Equal(t, prior.ID, res.Closed.ID)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), *res.Closed.EffectiveTo)
	require.Equal(t, testCurrency, res.Mapping.Currency)
	require.Contains(t, h.world.eventTopics(), TopicMappingChanged)

	before, err := h.svc.ResolveComponentMapping(ctx, h.reviewer, ResolveMappingInput{
		LegalEntityID: h.leID, ProviderCode: testProvider, Currency: testCurrency,
		ComponentCode: domain.ComponentBaseSalaryExpense, AsOf: from.AddDate(0, 0, -1), RequiredSide: domain.SideDebit,
	})
	require.NoError(t, err)
	require.Equal(t, prior.ID, before.Resolved.Mapping.ID)

	after, err := h.svc.ResolveComponentMapping(ctx, h.reviewer, ResolveMappingInput{
		LegalEntityID: h.leID, ProviderCode: testProvider, Currency: testCurrency,
		ComponentCode: domain.ComponentBaseSalaryExpense, AsOf: from, RequiredSide: domain.SideDebit,
	})
	require.NoError(t, err)
	require.Equal(t, res.Mapping.ID, after.Resolved.Mapping.ID)

	_, err = h.svc.UpsertComponentMapping(ctx, h.reviewer, UpsertMappingInput{
		LegalEntityID: h.leID, ProviderCode: testProvider, Currency: testCurrency,
		ComponentCode: domain.ComponentBaseSalaryExpense, GLAccountID: acct.ID, EntrySide: domain.SideDebit,
		EffectiveFrom: from,
	})
	requireCode(t, err, CodeMappingOverlap)
}

func TestResolveComponentMapping_Issues(t *testing.T) {
	h := newHarness(Settings{})
	ctx := context.Background()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	query := func(component string, side domain.EntrySide) MappingResolution {
		res, err := h.svc.ResolveComponentMapping(ctx, h.reviewer, ResolveMappingInput{
			LegalEntityID: h.leID, ProviderCode: testProvider, Currency: testCurrency,
			ComponentCode: component, AsOf: asOf, RequiredSide: side,
		})
		require.NoError(t, err)
		return res
	}

	res := query("UNKNOWN", domain.SideDebit)
	require.Nil(t, res.Resolved)
	require.Equal(t, domain.IssueMappingMissing, res.Issue.Code)

	res = query(domain.ComponentNetPayAccrual, domain.SideDebit)
	require.Equal(t, domain.IssueEntrySideMismatch, res.Issue.Code)

	for _, m := range h.world.mappings {
		if m.ComponentCode == domain.ComponentNetPayAccrual {
			acct := h.world.accounts[m.GLAccountID]
			acct.IsPostable = false
			h.world.accounts[acct.ID] = acct
		}
	}
	res = query(domain.ComponentNetPayAccrual, domain.SideCredit)
	require.Equal(t, domain.IssueAccountNotPost, res.Issue.Code)
}

func TestUpsertComponentMapping_RejectsForeignAccount(t *testing.T) {
	h := newHarness(Settings{})
	acct := h.addMapping("FOREIGN", domain.SideDebit)
	other := h.tenantID
	acct.LegalEntityID = &other
	h.world.accounts[acct.ID] = acct

	_, err := h.svc.UpsertComponentMapping(context.Background(), h.reviewer, UpsertMappingInput{
		LegalEntityID: h.leID, ProviderCode: testProvider, Currency: testCurrency,
		ComponentCode: "FOREIGN", GLAccountID: acct.ID, EntrySide: domain.SideDebit,
		EffectiveFrom: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	requireCode(t, err, string(domain.IssueAccountScope))
}
