package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iota-uz/payroll-ledger/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// CodedError is implemented by service errors that carry an HTTP status.
type CodedError interface {
	error
	HTTPStatus() int
	ErrorCode() string
	ErrorDetails() map[string]any
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteServiceError renders err, falling back to 500 for uncoded errors.
func WriteServiceError(w http.ResponseWriter, requestID, fallbackCode string, err error) error {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}

	var coded CodedError
	if errors.As(err, &coded) {
		return WriteJSON(w, coded.HTTPStatus(), &ErrorEnvelope{
			Code:    coded.ErrorCode(),
			Message: coded.Error(),
			Meta:    meta,
			Details: coded.ErrorDetails(),
		})
	}
	if code := serrors.CodeOf(err); code != "" {
		return WriteError(w, http.StatusBadRequest, code, err.Error(), meta)
	}
	return WriteError(w, http.StatusInternalServerError, fallbackCode, err.Error(), meta)
}
