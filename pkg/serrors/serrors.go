// Package serrors provides coded sentinel errors that survive wrapping.
package serrors

import (
	"errors"
	"fmt"
)

type BaseError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	LocaleKey  string `json:"locale_key,omitempty"`
	TemplateID string `json:"-"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{Code: code, Message: message, LocaleKey: localeKey}
}

func (e *BaseError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any BaseError carrying the same code.
func (e *BaseError) Is(target error) bool {
	var other *BaseError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf returns the code of the first BaseError in err's chain.
func CodeOf(err error) string {
	var base *BaseError
	if errors.As(err, &base) {
		return base.Code
	}
	return ""
}
