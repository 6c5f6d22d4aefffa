package domain

import "github.com/iota-uz/payroll-ledger/pkg/serrors"

var (
	ErrLiabilityConsumed = serrors.NewError("PAYROLL_LIABILITY_CONSUMED", "liability already consumed", "Payroll.Errors.LiabilityConsumed")
	ErrNotFound          = serrors.NewError("PAYROLL_NOT_FOUND", "not found", "Payroll.Errors.NotFound")
)
