package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type LiabilityType string

const (
	LiabilityEmployeeNetPay         LiabilityType = "EMPLOYEE_NET_PAY"
	LiabilityEmployeeTax            LiabilityType = "EMPLOYEE_TAX"
	LiabilityEmployeeSocialSecurity LiabilityType = "EMPLOYEE_SOCIAL_SECURITY"
	LiabilityEmployerTax            LiabilityType = "EMPLOYER_TAX"
	LiabilityEmployerSocialSecurity LiabilityType = "EMPLOYER_SOCIAL_SECURITY"
	LiabilityOtherDeductions        LiabilityType = "OTHER_DEDUCTIONS"
)

type LiabilityGroup string

const (
	GroupEmployeeNet LiabilityGroup = "EMPLOYEE_NET"
	GroupStatutory   LiabilityGroup = "STATUTORY"
)

type LiabilityStatus string

const (
	LiabilityOpen          LiabilityStatus = "OPEN"
	LiabilityInBatch       LiabilityStatus = "IN_BATCH"
	LiabilityPartiallyPaid LiabilityStatus = "PARTIALLY_PAID"
	LiabilityPaid          LiabilityStatus = "PAID"
	LiabilityCancelled     LiabilityStatus = "CANCELLED"
)

// Progressed reports whether money movement has started for the status.
func (s LiabilityStatus) Progressed() bool {
	return s == LiabilityInBatch || s == LiabilityPartiallyPaid || s == LiabilityPaid
}

// LiabilityRule describes how a liability type is derived from a run.
type LiabilityRule struct {
	Type             LiabilityType
	Group            LiabilityGroup
	PayableComponent string
	// Total reads the run-level amount for statutory aggregates.
	Total func(Components) money.Amount
}

// LiabilityRules is built once and never mutated.
var LiabilityRules = map[LiabilityType]LiabilityRule{
	LiabilityEmployeeNetPay: {
		Type: LiabilityEmployeeNetPay, Group: GroupEmployeeNet, PayableComponent: ComponentNetPayPayable,
		Total: func(c Components) money.Amount { return c.NetPay },
	},
	LiabilityEmployeeTax: {
		Type: LiabilityEmployeeTax, Group: GroupStatutory, PayableComponent: ComponentEmployeeTaxPayable,
		Total: func(c Components) money.Amount { return c.EmployeeTax },
	},
	LiabilityEmployeeSocialSecurity: {
		Type: LiabilityEmployeeSocialSecurity, Group: GroupStatutory, PayableComponent: ComponentEmployeeSocialSecurityPayable,
		Total: func(c Components) money.Amount { return c.EmployeeSocialSecurity },
	},
	LiabilityEmployerTax: {
		Type: LiabilityEmployerTax, Group: GroupStatutory, PayableComponent: ComponentEmployerTaxPayable,
		Total: func(c Components) money.Amount { return c.EmployerTax },
	},
	LiabilityEmployerSocialSecurity: {
		Type: LiabilityEmployerSocialSecurity, Group: GroupStatutory, PayableComponent: ComponentEmployerSocialSecurityPayable,
		Total: func(c Components) money.Amount { return c.EmployerSocialSecurity },
	},
	LiabilityOtherDeductions: {
		Type: LiabilityOtherDeductions, Group: GroupStatutory, PayableComponent: ComponentOtherDeductionsPayable,
		Total: func(c Components) money.Amount { return c.OtherDeductions },
	},
}

// StatutoryTypes fixes the build order of statutory aggregates.
var StatutoryTypes = []LiabilityType{
	LiabilityEmployeeTax,
	LiabilityEmployeeSocialSecurity,
	LiabilityEmployerTax,
	LiabilityEmployerSocialSecurity,
	LiabilityOtherDeductions,
}

type Liability struct {
	ID                     uuid.UUID       `json:"id"`
	TenantID               uuid.UUID       `json:"tenant_id"`
	LegalEntityID          uuid.UUID       `json:"legal_entity_id"`
	RunID                  uuid.UUID       `json:"run_id"`
	LiabilityType          LiabilityType   `json:"liability_type"`
	LiabilityGroup         LiabilityGroup  `json:"liability_group"`
	EmployeeCode           *string         `json:"employee_code,omitempty"`
	EmployeeName           *string         `json:"employee_name,omitempty"`
	RunLineID              *uuid.UUID      `json:"run_line_id,omitempty"`
	PayableComponentCode   string          `json:"payable_component_code"`
	PayableGLAccountID     uuid.UUID       `json:"payable_gl_account_id"`
	Currency               string          `json:"currency"`
	Amount                 money.Amount    `json:"amount"`
	SettledAmount          money.Amount    `json:"settled_amount"`
	OutstandingAmount      money.Amount    `json:"outstanding_amount"`
	Status                 LiabilityStatus `json:"status"`
	ReservedPaymentBatchID *uuid.UUID      `json:"reserved_payment_batch_id,omitempty"`
	LiabilityKey           string          `json:"liability_key"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

func (l Liability) IsEmployee() bool {
	return l.LiabilityGroup == GroupEmployeeNet
}

// SetSettled moves settled and outstanding together so that
// outstanding = amount - settled and outstanding >= 0 always hold.
func (l *Liability) SetSettled(settled money.Amount) {
	settled = money.Min(money.Max(settled, money.Zero), l.Amount)
	l.SettledAmount = settled
	outstanding := l.Amount.Sub(settled)
	if outstanding.NearlyZero() {
		outstanding = money.Zero
		l.SettledAmount = l.Amount
	}
	l.OutstandingAmount = outstanding
}

// Reserve flips an OPEN liability into batchID. Reserving again into the
// same batch is a no-op.
func (l *Liability) Reserve(batchID uuid.UUID) error {
	switch l.Status {
	case LiabilityPaid, LiabilityCancelled:
		return fmt.Errorf("%w: liability %s is %s", ErrLiabilityConsumed, l.ID, l.Status)
	}
	if l.ReservedPaymentBatchID != nil {
		if *l.ReservedPaymentBatchID == batchID {
			return nil
		}
		return fmt.Errorf("%w: liability %s is reserved by payment batch %s", ErrLiabilityConsumed, l.ID, *l.ReservedPaymentBatchID)
	}
	if l.Status != LiabilityOpen {
		return fmt.Errorf("%w: liability %s is %s", ErrLiabilityConsumed, l.ID, l.Status)
	}
	id := batchID
	l.ReservedPaymentBatchID = &id
	l.Status = LiabilityInBatch
	return nil
}

// Release returns the liability to OPEN and drops its batch reservation.
func (l *Liability) Release() {
	l.Status = LiabilityOpen
	l.ReservedPaymentBatchID = nil
	l.SetSettled(money.Zero)
}

type BatchScope string

const (
	ScopeNetPay    BatchScope = "NET_PAY"
	ScopeStatutory BatchScope = "STATUTORY"
	ScopeAll       BatchScope = "ALL"
)

func (s BatchScope) Valid() bool {
	return s == ScopeNetPay || s == ScopeStatutory || s == ScopeAll
}

func (s BatchScope) Includes(g LiabilityGroup) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeNetPay:
		return g == GroupEmployeeNet
	case ScopeStatutory:
		return g == GroupStatutory
	}
	return false
}

type LiabilitySummary struct {
	Count              int          `json:"count"`
	TotalEmployeeNet   money.Amount `json:"total_employee_net"`
	TotalStatutory     money.Amount `json:"total_statutory"`
	TotalOpen          money.Amount `json:"total_open"`
	TotalInBatch       money.Amount `json:"total_in_batch"`
	TotalPartiallyPaid money.Amount `json:"total_partially_paid"`
	TotalPaid          money.Amount `json:"total_paid"`
	TotalCancelled     money.Amount `json:"total_cancelled"`
	TotalSettled       money.Amount `json:"total_settled"`
	TotalOutstanding   money.Amount `json:"total_outstanding"`
}

// Summarize groups liabilities by status. Cancelled liabilities count only
// towards TotalCancelled.
func Summarize(items []Liability) LiabilitySummary {
	var s LiabilitySummary
	for _, l := range items {
		s.Count++
		if l.Status == LiabilityCancelled {
			s.TotalCancelled = s.TotalCancelled.Add(l.Amount)
			continue
		}
		switch l.LiabilityGroup {
		case GroupEmployeeNet:
			s.TotalEmployeeNet = s.TotalEmployeeNet.Add(l.Amount)
		case GroupStatutory:
			s.TotalStatutory = s.TotalStatutory.Add(l.Amount)
		}
		switch l.Status {
		case LiabilityOpen:
			s.TotalOpen = s.TotalOpen.Add(l.OutstandingAmount)
		case LiabilityInBatch:
			s.TotalInBatch = s.TotalInBatch.Add(l.OutstandingAmount)
		case LiabilityPartiallyPaid:
			s.TotalPartiallyPaid = s.TotalPartiallyPaid.Add(l.OutstandingAmount)
		case LiabilityPaid:
			s.TotalPaid = s.TotalPaid.Add(l.SettledAmount)
		}
		s.TotalSettled = s.TotalSettled.Add(l.SettledAmount)
		s.TotalOutstanding = s.TotalOutstanding.Add(l.OutstandingAmount)
	}
	return s
}
