package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
)

const (
	CodeMissingTenant = "AUTH_TENANT_REQUIRED"
	CodeMissingUser   = "AUTH_USER_REQUIRED"
)

// RequireActor reads the tenant and user ids forwarded by the authenticating
// gateway and rejects requests that carry neither a valid tenant nor user.
func RequireActor(conf *configuration.Configuration) mux.MiddlewareFunc {
	if conf == nil {
		conf = configuration.Use()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := map[string]string{}
			if id := composables.UseRequestID(r.Context()); id != "" {
				meta["request_id"] = id
			}

			tenantID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(conf.TenantIDHeader)))
			if err != nil || tenantID == uuid.Nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, CodeMissingTenant, "tenant is required", meta)
				return
			}
			userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(conf.UserIDHeader)))
			if err != nil || userID == uuid.Nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, CodeMissingUser, "user is required", meta)
				return
			}

			ctx := composables.WithTenantID(r.Context(), tenantID)
			ctx = composables.WithUserID(ctx, userID)
			if logger := composables.UseLogger(ctx); logger != nil {
				ctx = composables.WithLogger(ctx, logger.WithFields(logrus.Fields{
					"tenant-id": tenantID.String(),
					"user-id":   userID.String(),
				}))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
