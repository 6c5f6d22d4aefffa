package dtos

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/constants"
)

const dateLayout = "2006-01-02"

// fieldErrors flattens validator output into json-path -> rule.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[path] = rule
	}
	return out
}

func check(d any) (map[string]string, bool) {
	if err := constants.Validate.Struct(d); err != nil {
		return fieldErrors(err), false
	}
	return map[string]string{}, true
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", v)
	}
	return &t, nil
}

type ImportRowDTO struct {
	EmployeeCode string `json:"employee_code" validate:"required,max=64"`
	EmployeeName string `json:"employee_name" validate:"max=255"`
	CostCenter   string `json:"cost_center" validate:"max=64"`
	domain.Components
}

type ImportRunDTO struct {
	TargetRunID     *uuid.UUID     `json:"target_run_id"`
	LegalEntityCode string         `json:"legal_entity_code" validate:"required_without=TargetRunID,max=64"`
	ProviderCode    string         `json:"provider_code" validate:"required_without=TargetRunID,max=64"`
	Period          string         `json:"period" validate:"required_without=TargetRunID,omitempty,datetime=2006-01"`
	PayDate         string         `json:"pay_date" validate:"required_without=TargetRunID,omitempty,datetime=2006-01-02"`
	Currency        string         `json:"currency" validate:"required_without=TargetRunID,omitempty,len=3,alpha"`
	RunNo           string         `json:"run_no" validate:"max=64"`
	Rows            []ImportRowDTO `json:"rows" validate:"required,min=1,dive"`
}

func (d *ImportRunDTO) Normalize() {
	d.LegalEntityCode = strings.TrimSpace(d.LegalEntityCode)
	d.ProviderCode = strings.TrimSpace(d.ProviderCode)
	d.Period = strings.TrimSpace(d.Period)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.RunNo = strings.TrimSpace(d.RunNo)
	for i := range d.Rows {
		d.Rows[i].EmployeeCode = strings.TrimSpace(d.Rows[i].EmployeeCode)
		d.Rows[i].EmployeeName = strings.TrimSpace(d.Rows[i].EmployeeName)
		d.Rows[i].CostCenter = strings.TrimSpace(d.Rows[i].CostCenter)
	}
}

func (d *ImportRunDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return check(d)
}

func (d *ImportRunDTO) ToInput() (services.ImportRunInput, error) {
	payDate, err := parseDate(d.PayDate)
	if err != nil {
		return services.ImportRunInput{}, err
	}
	rows := make([]services.ImportRow, 0, len(d.Rows))
	for _, r := range d.Rows {
		rows = append(rows, services.ImportRow{
			EmployeeCode: r.EmployeeCode,
			EmployeeName: r.EmployeeName,
			CostCenter:   r.CostCenter,
			Amounts:      r.Components,
		})
	}
	return services.ImportRunInput{
		TargetRunID:     d.TargetRunID,
		LegalEntityCode: d.LegalEntityCode,
		ProviderCode:    d.ProviderCode,
		Period:          d.Period,
		PayDate:         payDate,
		Currency:        d.Currency,
		RunNo:           d.RunNo,
		Rows:            rows,
	}, nil
}

type FinalizeRunDTO struct {
	ForceFromImported bool `json:"force_from_imported"`
}

type CreatePaymentBatchDTO struct {
	Scope          string     `json:"scope" validate:"required,oneof=NET_PAY STATUTORY ALL"`
	IdempotencyKey string     `json:"idempotency_key" validate:"required,max=200"`
	BankAccountID  *uuid.UUID `json:"bank_account_id"`
	Notes          string     `json:"notes" validate:"max=1000"`
}

func (d *CreatePaymentBatchDTO) Ok() (map[string]string, bool) {
	d.Scope = strings.ToUpper(strings.TrimSpace(d.Scope))
	d.IdempotencyKey = strings.TrimSpace(d.IdempotencyKey)
	d.Notes = strings.TrimSpace(d.Notes)
	return check(d)
}

func (d *CreatePaymentBatchDTO) ToInput() services.CreateBatchInput {
	return services.CreateBatchInput{
		Scope:          domain.BatchScope(d.Scope),
		IdempotencyKey: d.IdempotencyKey,
		BankAccountID:  d.BankAccountID,
		Notes:          d.Notes,
	}
}

type SettlementSyncDTO struct {
	RunID                       *uuid.UUID `json:"run_id"`
	LegalEntityID               *uuid.UUID `json:"legal_entity_id"`
	Limit                       int        `json:"limit" validate:"gte=0,lte=5000"`
	AllowEvidenceFreeSettlement *bool      `json:"allow_evidence_free_settlement"`
}

func (d *SettlementSyncDTO) Ok() (map[string]string, bool) {
	return check(d)
}

func (d *SettlementSyncDTO) ToFilter() services.SyncFilter {
	return services.SyncFilter{
		RunID:                       d.RunID,
		LegalEntityID:               d.LegalEntityID,
		Limit:                       d.Limit,
		AllowEvidenceFreeSettlement: d.AllowEvidenceFreeSettlement,
	}
}

type CorrectionShellDTO struct {
	Type            string     `json:"type" validate:"required,oneof=RETRO OFF_CYCLE"`
	OriginalRunID   *uuid.UUID `json:"original_run_id" validate:"required_if=Type RETRO"`
	LegalEntityCode string     `json:"legal_entity_code" validate:"required_if=Type OFF_CYCLE,max=64"`
	ProviderCode    string     `json:"provider_code" validate:"required_if=Type OFF_CYCLE,max=64"`
	Period          string     `json:"period" validate:"required_if=Type OFF_CYCLE,omitempty,datetime=2006-01"`
	PayDate         string     `json:"pay_date" validate:"omitempty,datetime=2006-01-02"`
	Currency        string     `json:"currency" validate:"required_if=Type OFF_CYCLE,omitempty,len=3,alpha"`
	RunNo           string     `json:"run_no" validate:"max=64"`
	IdempotencyKey  string     `json:"idempotency_key" validate:"max=200"`
	Reason          string     `json:"reason" validate:"required,max=1000"`
}

func (d *CorrectionShellDTO) Ok() (map[string]string, bool) {
	d.Type = strings.ToUpper(strings.TrimSpace(d.Type))
	d.LegalEntityCode = strings.TrimSpace(d.LegalEntityCode)
	d.ProviderCode = strings.TrimSpace(d.ProviderCode)
	d.Period = strings.TrimSpace(d.Period)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.IdempotencyKey = strings.TrimSpace(d.IdempotencyKey)
	d.Reason = strings.TrimSpace(d.Reason)
	return check(d)
}

func (d *CorrectionShellDTO) ToInput() (services.ShellInput, error) {
	payDate, err := parseDate(d.PayDate)
	if err != nil {
		return services.ShellInput{}, err
	}
	return services.ShellInput{
		Type:            domain.CorrectionType(d.Type),
		OriginalRunID:   d.OriginalRunID,
		LegalEntityCode: d.LegalEntityCode,
		ProviderCode:    d.ProviderCode,
		Period:          d.Period,
		PayDate:         payDate,
		Currency:        d.Currency,
		RunNo:           d.RunNo,
		IdempotencyKey:  d.IdempotencyKey,
		Reason:          d.Reason,
	}, nil
}

type ReverseRunDTO struct {
	Reason         string `json:"reason" validate:"required,max=1000"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=200"`
}

func (d *ReverseRunDTO) Ok() (map[string]string, bool) {
	d.Reason = strings.TrimSpace(d.Reason)
	d.IdempotencyKey = strings.TrimSpace(d.IdempotencyKey)
	return check(d)
}

type UpsertMappingDTO struct {
	LegalEntityID uuid.UUID `json:"legal_entity_id" validate:"required"`
	ProviderCode  string    `json:"provider_code" validate:"required,max=64"`
	Currency      string    `json:"currency" validate:"required,len=3,alpha"`
	ComponentCode string    `json:"component_code" validate:"required,max=64"`
	GLAccountID   uuid.UUID `json:"gl_account_id" validate:"required"`
	EntrySide     string    `json:"entry_side" validate:"required,oneof=DEBIT CREDIT"`
	EffectiveFrom string    `json:"effective_from" validate:"required,datetime=2006-01-02"`
}

func (d *UpsertMappingDTO) Ok() (map[string]string, bool) {
	d.ProviderCode = strings.TrimSpace(d.ProviderCode)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.ComponentCode = strings.TrimSpace(d.ComponentCode)
	d.EntrySide = strings.ToUpper(strings.TrimSpace(d.EntrySide))
	return check(d)
}

func (d *UpsertMappingDTO) ToInput() (services.UpsertMappingInput, error) {
	from, err := parseDate(d.EffectiveFrom)
	if err != nil {
		return services.UpsertMappingInput{}, err
	}
	return services.UpsertMappingInput{
		LegalEntityID: d.LegalEntityID,
		ProviderCode:  d.ProviderCode,
		Currency:      d.Currency,
		ComponentCode: d.ComponentCode,
		GLAccountID:   d.GLAccountID,
		EntrySide:     domain.EntrySide(d.EntrySide),
		EffectiveFrom: *from,
	}, nil
}
