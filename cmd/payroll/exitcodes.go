package main

import (
	"errors"
	"net/http"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitConflict   = 5
	exitNotFound   = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// exitCode maps explicit CLI codes first, then the HTTP status a service
// error would have been rendered with.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if errors.Is(err, domain.ErrNotFound) {
		return exitNotFound
	}
	var coded httpapi.CodedError
	if errors.As(err, &coded) {
		switch status := coded.HTTPStatus(); {
		case status == http.StatusNotFound:
			return exitNotFound
		case status == http.StatusConflict:
			return exitConflict
		case status >= 400 && status < 500:
			return exitValidation
		}
	}
	return exitFailure
}
