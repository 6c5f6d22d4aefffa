package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

var componentColumns = map[string]func(*domain.Components) *money.Amount{
	"base_salary":              func(c *domain.Components) *money.Amount { return &c.BaseSalary },
	"overtime":                 func(c *domain.Components) *money.Amount { return &c.Overtime },
	"bonus":                    func(c *domain.Components) *money.Amount { return &c.Bonus },
	"allowances":               func(c *domain.Components) *money.Amount { return &c.Allowances },
	"gross":                    func(c *domain.Components) *money.Amount { return &c.Gross },
	"employee_tax":             func(c *domain.Components) *money.Amount { return &c.EmployeeTax },
	"employee_social_security": func(c *domain.Components) *money.Amount { return &c.EmployeeSocialSecurity },
	"other_deductions":         func(c *domain.Components) *money.Amount { return &c.OtherDeductions },
	"employer_tax":             func(c *domain.Components) *money.Amount { return &c.EmployerTax },
	"employer_social_security": func(c *domain.Components) *money.Amount { return &c.EmployerSocialSecurity },
	"net_pay":                  func(c *domain.Components) *money.Amount { return &c.NetPay },
}

var textColumns = []string{"employee_code", "employee_name", "cost_center"}

func allowedColumns() []string {
	out := append([]string{}, textColumns...)
	for name := range componentColumns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// readImportRows parses a provider export: a header row naming columns, then
// one row per employee. Empty amount cells are zero.
func readImportRows(r io.Reader) ([]services.ImportRow, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, withCode(exitValidation, errors.New("missing header"))
		}
		return nil, withCode(exitValidation, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if !utf8.ValidString(h) {
			return nil, withCode(exitValidation, errors.New("invalid header encoding"))
		}
		if !slices.Contains(textColumns, h) && componentColumns[h] == nil {
			return nil, withCode(exitValidation, fmt.Errorf("unexpected header column: %s (allowed: %s)", h, strings.Join(allowedColumns(), ", ")))
		}
		if _, dup := index[h]; dup {
			return nil, withCode(exitValidation, fmt.Errorf("duplicate header column: %s", h))
		}
		index[h] = i
	}
	if _, ok := index["employee_code"]; !ok {
		return nil, withCode(exitValidation, errors.New("missing required header column: employee_code"))
	}

	var rows []services.ImportRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, withCode(exitValidation, err)
		}
		cell := func(name string) string {
			if i, ok := index[name]; ok {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		row := services.ImportRow{
			EmployeeCode: cell("employee_code"),
			EmployeeName: cell("employee_name"),
			CostCenter:   cell("cost_center"),
		}
		if row.EmployeeCode == "" {
			return nil, withCode(exitValidation, fmt.Errorf("line %d: employee_code is required", line))
		}
		for name, field := range componentColumns {
			raw := cell(name)
			if raw == "" {
				continue
			}
			amount, err := money.Parse(raw)
			if err != nil {
				return nil, withCode(exitValidation, fmt.Errorf("line %d: invalid %s %q", line, name, raw))
			}
			*field(&row.Amounts) = amount
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, withCode(exitValidation, errors.New("no rows"))
	}
	return rows, nil
}
