package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/money"
)

type EntrySide string

const (
	SideDebit  EntrySide = "DEBIT"
	SideCredit EntrySide = "CREDIT"
)

func (s EntrySide) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Accrual components post the payroll expense and the matching accrued
// liabilities when a run is finalized.
const (
	ComponentBaseSalaryExpense             = "BASE_SALARY_EXPENSE"
	ComponentOvertimeExpense               = "OVERTIME_EXPENSE"
	ComponentBonusExpense                  = "BONUS_EXPENSE"
	ComponentAllowancesExpense             = "ALLOWANCES_EXPENSE"
	ComponentEmployerTaxExpense            = "EMPLOYER_TAX_EXPENSE"
	ComponentEmployerSocialSecurityExpense = "EMPLOYER_SOCIAL_SECURITY_EXPENSE"

	ComponentNetPayAccrual                 = "NET_PAY_ACCRUAL"
	ComponentEmployeeTaxAccrual            = "EMPLOYEE_TAX_ACCRUAL"
	ComponentEmployeeSocialSecurityAccrual = "EMPLOYEE_SOCIAL_SECURITY_ACCRUAL"
	ComponentOtherDeductionsAccrual        = "OTHER_DEDUCTIONS_ACCRUAL"
	ComponentEmployerTaxAccrual            = "EMPLOYER_TAX_ACCRUAL"
	ComponentEmployerSocialSecurityAccrual = "EMPLOYER_SOCIAL_SECURITY_ACCRUAL"
)

// Payable components live in their own namespace and point liabilities at
// the accounts they are paid out of.
const (
	ComponentNetPayPayable                 = "NET_PAY_PAYABLE"
	ComponentEmployeeTaxPayable            = "EMPLOYEE_TAX_PAYABLE"
	ComponentEmployeeSocialSecurityPayable = "EMPLOYEE_SOCIAL_SECURITY_PAYABLE"
	ComponentOtherDeductionsPayable        = "OTHER_DEDUCTIONS_PAYABLE"
	ComponentEmployerTaxPayable            = "EMPLOYER_TAX_PAYABLE"
	ComponentEmployerSocialSecurityPayable = "EMPLOYER_SOCIAL_SECURITY_PAYABLE"
)

type AccrualRule struct {
	ComponentCode string
	Side          EntrySide
	Amount        func(Components) money.Amount
}

// AccrualRules is ordered debit-first; journal lines follow this order.
var AccrualRules = []AccrualRule{
	{ComponentBaseSalaryExpense, SideDebit, func(c Components) money.Amount { return c.BaseSalary }},
	{ComponentOvertimeExpense, SideDebit, func(c Components) money.Amount { return c.Overtime }},
	{ComponentBonusExpense, SideDebit, func(c Components) money.Amount { return c.Bonus }},
	{ComponentAllowancesExpense, SideDebit, func(c Components) money.Amount { return c.Allowances }},
	{ComponentEmployerTaxExpense, SideDebit, func(c Components) money.Amount { return c.EmployerTax }},
	{ComponentEmployerSocialSecurityExpense, SideDebit, func(c Components) money.Amount { return c.EmployerSocialSecurity }},
	{ComponentNetPayAccrual, SideCredit, func(c Components) money.Amount { return c.NetPay }},
	{ComponentEmployeeTaxAccrual, SideCredit, func(c Components) money.Amount { return c.EmployeeTax }},
	{ComponentEmployeeSocialSecurityAccrual, SideCredit, func(c Components) money.Amount { return c.EmployeeSocialSecurity }},
	{ComponentOtherDeductionsAccrual, SideCredit, func(c Components) money.Amount { return c.OtherDeductions }},
	{ComponentEmployerTaxAccrual, SideCredit, func(c Components) money.Amount { return c.EmployerTax }},
	{ComponentEmployerSocialSecurityAccrual, SideCredit, func(c Components) money.Amount { return c.EmployerSocialSecurity }},
}

type ComponentMapping struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	LegalEntityID uuid.UUID  `json:"legal_entity_id"`
	ProviderCode  string     `json:"provider_code"`
	Currency      string     `json:"currency"`
	ComponentCode string     `json:"component_code"`
	GLAccountID   uuid.UUID  `json:"gl_account_id"`
	EntrySide     EntrySide  `json:"entry_side"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActiveOn reports whether the mapping covers day (inclusive on both ends).
func (m ComponentMapping) ActiveOn(day time.Time) bool {
	day = truncateDay(day)
	if truncateDay(m.EffectiveFrom).After(day) {
		return false
	}
	return m.EffectiveTo == nil || !truncateDay(*m.EffectiveTo).Before(day)
}

type GLAccount struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	// Nil means the account belongs to the tenant-wide chart.
	LegalEntityID *uuid.UUID `json:"legal_entity_id,omitempty"`
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	IsPostable    bool       `json:"is_postable"`
	IsLeaf        bool       `json:"is_leaf"`
}

type IssueCode string

const (
	IssueMappingMissing    IssueCode = "MAPPING_MISSING"
	IssueEntrySideMismatch IssueCode = "ENTRY_SIDE_MISMATCH"
	IssueAccountInactive   IssueCode = "GL_ACCOUNT_INACTIVE"
	IssueAccountNotPost    IssueCode = "GL_ACCOUNT_NOT_POSTABLE"
	IssueAccountNotLeaf    IssueCode = "GL_ACCOUNT_NOT_LEAF"
	IssueAccountScope      IssueCode = "GL_ACCOUNT_SCOPE_MISMATCH"
)

type MappingIssue struct {
	ComponentCode string     `json:"component_code"`
	RequiredSide  EntrySide  `json:"required_side"`
	Code          IssueCode  `json:"issue_code"`
	Message       string     `json:"message"`
	GLAccountID   *uuid.UUID `json:"gl_account_id,omitempty"`
}

// CheckAccount returns the first problem that makes acct unusable for a
// posting on behalf of legalEntityID, or "" when it is usable.
func CheckAccount(acct GLAccount, legalEntityID uuid.UUID) IssueCode {
	switch {
	case !acct.IsActive:
		return IssueAccountInactive
	case !acct.IsLeaf:
		return IssueAccountNotLeaf
	case !acct.IsPostable:
		return IssueAccountNotPost
	case acct.LegalEntityID != nil && *acct.LegalEntityID != legalEntityID:
		return IssueAccountScope
	}
	return ""
}

func IssueMessage(code IssueCode, component string) string {
	switch code {
	case IssueMappingMissing:
		return "no active mapping for component " + component
	case IssueEntrySideMismatch:
		return "mapping entry side does not match component " + component
	case IssueAccountInactive:
		return "gl account mapped for " + component + " is inactive"
	case IssueAccountNotPost:
		return "gl account mapped for " + component + " is not postable"
	case IssueAccountNotLeaf:
		return "gl account mapped for " + component + " is not a leaf account"
	case IssueAccountScope:
		return "gl account mapped for " + component + " belongs to another legal entity"
	default:
		return string(code)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day normalizes t to midnight UTC.
func Day(t time.Time) time.Time { return truncateDay(t) }
