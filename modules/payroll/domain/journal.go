package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

const (
	JournalSourcePayrollAccrual  = "PAYROLL_ACCRUAL"
	JournalSourcePayrollReversal = "PAYROLL_REVERSAL"
)

type JournalLine struct {
	LineNo        int          `json:"line_no"`
	GLAccountID   uuid.UUID    `json:"gl_account_id"`
	ComponentCode string       `json:"component_code"`
	Debit         money.Amount `json:"debit"`
	Credit        money.Amount `json:"credit"`
	Description   string       `json:"description,omitempty"`
}

type JournalEntry struct {
	ID                uuid.UUID     `json:"id"`
	TenantID          uuid.UUID     `json:"tenant_id"`
	LegalEntityID     uuid.UUID     `json:"legal_entity_id"`
	BookID            uuid.UUID     `json:"book_id"`
	FiscalPeriodID    uuid.UUID     `json:"fiscal_period_id"`
	JournalNumber     string        `json:"journal_number"`
	EntryDate         time.Time     `json:"entry_date"`
	Currency          string        `json:"currency"`
	SourceType        string        `json:"source_type"`
	SourceID          uuid.UUID     `json:"source_id"`
	ReversesJournalID *uuid.UUID    `json:"reverses_journal_id,omitempty"`
	Description       string        `json:"description"`
	Status            string        `json:"status"`
	Lines             []JournalLine `json:"lines"`
	CreatedBy         uuid.UUID     `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (j JournalEntry) Totals() (debit, credit money.Amount) {
	for _, l := range j.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func (j JournalEntry) Balanced() bool {
	d, c := j.Totals()
	return d.NearlyEqual(c)
}

// Reversed mirrors every line onto the opposite side.
func (j JournalEntry) Reversed() []JournalLine {
	out := make([]JournalLine, 0, len(j.Lines))
	for i, l := range j.Lines {
		out = append(out, JournalLine{
			LineNo:        i + 1,
			GLAccountID:   l.GLAccountID,
			ComponentCode: l.ComponentCode,
			Debit:         l.Credit,
			Credit:        l.Debit,
			Description:   "reversal: " + l.Description,
		})
	}
	return out
}

type FiscalPeriod struct {
	ID        uuid.UUID `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	Code      string    `json:"code"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    string    `json:"status"`
}

const FiscalPeriodOpen = "OPEN"
