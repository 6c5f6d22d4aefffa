package server

import (
	"net/http"
	"strings"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
	"github.com/iota-uz/payroll-ledger/pkg/routing"
)

type ErrorHandlersOptions struct {
	Entrypoint    string
	AllowlistPath string
}

func loadClassifier(opts ErrorHandlersOptions) *routing.Classifier {
	rules, err := routing.LoadAllowlist(opts.AllowlistPath, opts.Entrypoint)
	if err != nil {
		rules = nil
	}
	return routing.NewClassifier(rules)
}

// NotFound answers API paths with the JSON error envelope and everything
// else with plain text.
func NotFound(opts ErrorHandlersOptions) http.HandlerFunc {
	classifier := loadClassifier(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		if !classifier.IsAPI(r.URL.Path) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		meta := map[string]string{"path": r.URL.Path}
		if requestID := requestIDFromResponse(w, r); requestID != "" {
			meta["request_id"] = requestID
		}
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found", meta)
	}
}

func MethodNotAllowed(opts ErrorHandlersOptions) http.HandlerFunc {
	classifier := loadClassifier(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		if !classifier.IsAPI(r.URL.Path) {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		meta := map[string]string{"method": r.Method, "path": r.URL.Path}
		if requestID := requestIDFromResponse(w, r); requestID != "" {
			meta["request_id"] = requestID
		}
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", meta)
	}
}

func requestIDFromResponse(w http.ResponseWriter, r *http.Request) string {
	if id := composables.UseRequestID(r.Context()); id != "" {
		return id
	}
	if id := strings.TrimSpace(w.Header().Get("X-Request-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}
