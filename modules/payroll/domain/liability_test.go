package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

func openLiability(amount string, group LiabilityGroup) Liability {
	l := Liability{ID: uuid.New(), Amount: money.MustParse(amount), Status: LiabilityOpen, LiabilityGroup: group}
	l.SetSettled(money.Zero)
	return l
}

func TestLiability_SetSettledKeepsConservation(t *testing.T) {
	l := openLiability("980", GroupEmployeeNet)
	for _, v := range []string{"0", "100.5", "979.9999995", "2000", "-5"} {
		l.SetSettled(money.MustParse(v))
		require.Equal(t, l.Amount.Sub(l.SettledAmount).String(), l.OutstandingAmount.String())
		require.False(t, l.OutstandingAmount.IsNegative())
	}
	l.SetSettled(money.MustParse("979.9999995"))
	require.True(t, l.OutstandingAmount.IsZero())
	require.Equal(t, "980.000000", l.SettledAmount.String())
}

func TestLiability_ReserveRejectsSecondBatch(t *testing.T) {
	l := openLiability("840", GroupEmployeeNet)
	first, second := uuid.New(), uuid.New()

	require.NoError(t, l.Reserve(first))
	require.Equal(t, LiabilityInBatch, l.Status)
	require.NoError(t, l.Reserve(first))

	err := l.Reserve(second)
	require.ErrorIs(t, err, ErrLiabilityConsumed)
	require.Equal(t, first, *l.ReservedPaymentBatchID)

	l.Release()
	require.Equal(t, LiabilityOpen, l.Status)
	require.Nil(t, l.ReservedPaymentBatchID)
	require.NoError(t, l.Reserve(second))
}

func TestLiability_ReserveRejectsTerminal(t *testing.T) {
	for _, status := range []LiabilityStatus{LiabilityPaid, LiabilityCancelled} {
		l := openLiability("10", GroupStatutory)
		l.Status = status
		require.ErrorIs(t, l.Reserve(uuid.New()), ErrLiabilityConsumed)
	}
}

func TestSummarize(t *testing.T) {
	items := []Liability{
		openLiability("980", GroupEmployeeNet),
		openLiability("840", GroupEmployeeNet),
		openLiability("300", GroupStatutory),
		openLiability("540", GroupStatutory),
	}
	require.NoError(t, items[0].Reserve(uuid.New()))
	items[3].Status = LiabilityCancelled

	s := Summarize(items)
	require.Equal(t, 4, s.Count)
	require.Equal(t, "1820.000000", s.TotalEmployeeNet.String())
	require.Equal(t, "300.000000", s.TotalStatutory.String())
	require.Equal(t, "1140.000000", s.TotalOpen.String())
	require.Equal(t, "980.000000", s.TotalInBatch.String())
	require.Equal(t, "540.000000", s.TotalCancelled.String())
}

func TestBatchScopeIncludes(t *testing.T) {
	require.True(t, ScopeNetPay.Includes(GroupEmployeeNet))
	require.False(t, ScopeNetPay.Includes(GroupStatutory))
	require.True(t, ScopeStatutory.Includes(GroupStatutory))
	require.True(t, ScopeAll.Includes(GroupEmployeeNet))
	require.False(t, BatchScope("OTHER").Valid())
}

func TestCheckAccount(t *testing.T) {
	le := uuid.New()
	other := uuid.New()
	ok := GLAccount{IsActive: true, IsLeaf: true, IsPostable: true}
	require.Equal(t, IssueCode(""), CheckAccount(ok, le))

	scoped := ok
	scoped.LegalEntityID = &other
	require.Equal(t, IssueAccountScope, CheckAccount(scoped, le))
	scoped.LegalEntityID = &le
	require.Equal(t, IssueCode(""), CheckAccount(scoped, le))

	inactive := ok
	inactive.IsActive = false
	require.Equal(t, IssueAccountInactive, CheckAccount(inactive, le))

	parent := ok
	parent.IsLeaf = false
	require.Equal(t, IssueAccountNotLeaf, CheckAccount(parent, le))

	header := ok
	header.IsPostable = false
	require.Equal(t, IssueAccountNotPost, CheckAccount(header, le))
}

func TestLineHash_NormalizesWhitespaceAndCase(t *testing.T) {
	amounts := Components{NetPay: money.MustParse("980")}
	a := LineHash(" e001 ", "Jane  Doe", "cc1", amounts)
	b := LineHash("E001", "jane doe", "CC1", amounts)
	require.Equal(t, a, b)
	require.NotEqual(t, a, LineHash("E001", "jane doe", "CC1", Components{NetPay: money.MustParse("981")}))
}
