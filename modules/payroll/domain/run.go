package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type RunStatus string

const (
	RunStatusDraft     RunStatus = "DRAFT"
	RunStatusImported  RunStatus = "IMPORTED"
	RunStatusReviewed  RunStatus = "REVIEWED"
	RunStatusFinalized RunStatus = "FINALIZED"
)

type RunType string

const (
	RunTypeRegular  RunType = "REGULAR"
	RunTypeRetro    RunType = "RETRO"
	RunTypeOffCycle RunType = "OFF_CYCLE"
	RunTypeReversal RunType = "REVERSAL"
)

func (t RunType) IsCorrection() bool {
	return t == RunTypeRetro || t == RunTypeOffCycle
}

// Components holds the monetary columns shared by run headers and run lines.
type Components struct {
	BaseSalary             money.Amount `json:"base_salary"`
	Overtime               money.Amount `json:"overtime"`
	Bonus                  money.Amount `json:"bonus"`
	Allowances             money.Amount `json:"allowances"`
	Gross                  money.Amount `json:"gross"`
	EmployeeTax            money.Amount `json:"employee_tax"`
	EmployeeSocialSecurity money.Amount `json:"employee_social_security"`
	OtherDeductions        money.Amount `json:"other_deductions"`
	EmployerTax            money.Amount `json:"employer_tax"`
	EmployerSocialSecurity money.Amount `json:"employer_social_security"`
	NetPay                 money.Amount `json:"net_pay"`
}

func (c Components) Add(o Components) Components {
	return Components{
		BaseSalary:             c.BaseSalary.Add(o.BaseSalary),
		Overtime:               c.Overtime.Add(o.Overtime),
		Bonus:                  c.Bonus.Add(o.Bonus),
		Allowances:             c.Allowances.Add(o.Allowances),
		Gross:                  c.Gross.Add(o.Gross),
		EmployeeTax:            c.EmployeeTax.Add(o.EmployeeTax),
		EmployeeSocialSecurity: c.EmployeeSocialSecurity.Add(o.EmployeeSocialSecurity),
		OtherDeductions:        c.OtherDeductions.Add(o.OtherDeductions),
		EmployerTax:            c.EmployerTax.Add(o.EmployerTax),
		EmployerSocialSecurity: c.EmployerSocialSecurity.Add(o.EmployerSocialSecurity),
		NetPay:                 c.NetPay.Add(o.NetPay),
	}
}

func (c Components) Neg() Components {
	return Components{}.Sub(c)
}

func (c Components) Sub(o Components) Components {
	return Components{
		BaseSalary:             c.BaseSalary.Sub(o.BaseSalary),
		Overtime:               c.Overtime.Sub(o.Overtime),
		Bonus:                  c.Bonus.Sub(o.Bonus),
		Allowances:             c.Allowances.Sub(o.Allowances),
		Gross:                  c.Gross.Sub(o.Gross),
		EmployeeTax:            c.EmployeeTax.Sub(o.EmployeeTax),
		EmployeeSocialSecurity: c.EmployeeSocialSecurity.Sub(o.EmployeeSocialSecurity),
		OtherDeductions:        c.OtherDeductions.Sub(o.OtherDeductions),
		EmployerTax:            c.EmployerTax.Sub(o.EmployerTax),
		EmployerSocialSecurity: c.EmployerSocialSecurity.Sub(o.EmployerSocialSecurity),
		NetPay:                 c.NetPay.Sub(o.NetPay),
	}
}

// Values lists every component in a fixed order.
func (c Components) Values() []money.Amount {
	return []money.Amount{
		c.BaseSalary, c.Overtime, c.Bonus, c.Allowances, c.Gross,
		c.EmployeeTax, c.EmployeeSocialSecurity, c.OtherDeductions,
		c.EmployerTax, c.EmployerSocialSecurity, c.NetPay,
	}
}

type Run struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	LegalEntityID    uuid.UUID  `json:"legal_entity_id"`
	RunNo            string     `json:"run_no"`
	ProviderCode     string     `json:"provider_code"`
	Period           string     `json:"payroll_period"`
	PayDate          time.Time  `json:"pay_date"`
	Currency         string     `json:"currency"`
	Status           RunStatus  `json:"status"`
	RunType          RunType    `json:"run_type"`
	OriginalRunID    *uuid.UUID `json:"original_run_id,omitempty"`
	AccrualJournalID *uuid.UUID `json:"accrual_journal_id,omitempty"`
	IsReversed       bool       `json:"is_reversed"`
	ReversalRunID    *uuid.UUID `json:"reversal_run_id,omitempty"`
	Totals           Components `json:"totals"`
	EmployeeCount    int        `json:"employee_count"`

	ImportedBy  *uuid.UUID `json:"imported_by,omitempty"`
	ImportedAt  *time.Time `json:"imported_at,omitempty"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	FinalizedBy *uuid.UUID `json:"finalized_by,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r Run) HasPostedAccrual() bool {
	return r.Status == RunStatusFinalized && r.AccrualJournalID != nil
}

type RunLine struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	RunID        uuid.UUID  `json:"run_id"`
	LineNo       int        `json:"line_no"`
	EmployeeCode string     `json:"employee_code"`
	EmployeeName string     `json:"employee_name"`
	CostCenter   string     `json:"cost_center,omitempty"`
	Amounts      Components `json:"amounts"`
	LineHash     string     `json:"line_hash"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SumLines totals the monetary components of lines.
func SumLines(lines []RunLine) Components {
	var total Components
	for _, l := range lines {
		total = total.Add(l.Amounts)
	}
	return total
}
