package authz

import (
	"fmt"

	"github.com/iota-uz/payroll-ledger/pkg/serrors"
)

const ErrorCodeForbidden = "AUTHZ_FORBIDDEN"

// ErrForbidden matches every denial produced by this package via errors.Is.
var ErrForbidden = serrors.NewError(ErrorCodeForbidden, "permission denied", "Authorization.PermissionDenied")

// ForbiddenError carries the denied request alongside the coded sentinel.
type ForbiddenError struct {
	Request Request
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission denied: %s cannot %s %s in %s", e.Request.Subject, e.Request.Action, e.Request.Object, e.Request.Domain)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func configError(msg string, args ...any) error {
	return fmt.Errorf("authz: "+msg, args...)
}
