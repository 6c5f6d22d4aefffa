package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
)

func testConfig() *configuration.Configuration {
	return &configuration.Configuration{
		GoAppEnvironment:     configuration.Production,
		RequestIDHeader:      "X-Request-ID",
		RealIPHeader:         "X-Real-IP",
		TenantIDHeader:       "X-Tenant-ID",
		UserIDHeader:         "X-User-ID",
		RoutingAllowlistPath: "config/routing/allowlist.yaml",
		OpsGuard: configuration.OpsGuardOptions{
			Enabled: true,
			CIDRs:   "10.0.0.0/8",
			Token:   "ops-secret",
		},
	}
}

func TestRequireActor(t *testing.T) {
	tenantID, userID := uuid.New(), uuid.New()
	var gotTenant, gotUser uuid.UUID
	h := RequireActor(testConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = composables.UseTenantID(r.Context())
		gotUser, _ = composables.UseUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		tenant string
		user   string
		status int
		code   string
	}{
		{name: "ok", tenant: tenantID.String(), user: userID.String(), status: http.StatusNoContent},
		{name: "missing tenant", user: userID.String(), status: http.StatusUnauthorized, code: CodeMissingTenant},
		{name: "bad user", tenant: tenantID.String(), user: "nope", status: http.StatusUnauthorized, code: CodeMissingUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/payroll/api/liabilities", nil)
			req.Header.Set("X-Tenant-ID", tc.tenant)
			req.Header.Set("X-User-ID", tc.user)
			req = req.WithContext(composables.WithLogger(req.Context(), logrus.NewEntry(logrus.New())))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.code == "" {
				require.Equal(t, tenantID, gotTenant)
				require.Equal(t, userID, gotUser)
				return
			}
			var env httpapi.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.Equal(t, tc.code, env.Code)
		})
	}
}

func TestOpsGuard(t *testing.T) {
	h := OpsGuard(testConfig(), "server")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path string, mutate func(r *http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.9:4000"
		if mutate != nil {
			mutate(req)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("/payroll/api/liabilities", nil))
	require.Equal(t, http.StatusNotFound, serve("/debug/prometheus", nil))
	require.Equal(t, http.StatusOK, serve("/debug/prometheus", func(r *http.Request) {
		r.Header.Set("X-Ops-Token", "ops-secret")
	}))
	require.Equal(t, http.StatusOK, serve("/health", func(r *http.Request) {
		r.Header.Set("X-Real-IP", "10.1.2.3")
	}))
}

func TestOpsGuard_CredentialKinds(t *testing.T) {
	conf := testConfig()
	conf.OpsGuard.CIDRs = "10.0.0.0/8; 192.0.2.7, not-a-cidr"
	conf.OpsGuard.BasicAuthUser = "ops"
	conf.OpsGuard.BasicAuthPass = "pass"
	g := &opsGuard{conf: conf}
	g.networks, _ = parseNetworks(conf.OpsGuard.CIDRs)

	req := func(mutate func(r *http.Request)) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "203.0.113.9:4000"
		if mutate != nil {
			mutate(r)
		}
		return r
	}

	require.Equal(t, credentialDenied, g.credential(req(nil)))
	require.Equal(t, credentialNetwork, g.credential(req(func(r *http.Request) { r.RemoteAddr = "192.0.2.7:51000" })))
	require.Equal(t, credentialNetwork, g.credential(req(func(r *http.Request) { r.Header.Set("X-Real-IP", "10.9.8.7, 203.0.113.9") })))
	require.Equal(t, credentialToken, g.credential(req(func(r *http.Request) { r.Header.Set("Authorization", "Bearer ops-secret") })))
	require.Equal(t, credentialDenied, g.credential(req(func(r *http.Request) { r.Header.Set("Authorization", "Basic ops-secret") })))
	require.Equal(t, credentialBasic, g.credential(req(func(r *http.Request) { r.SetBasicAuth("ops", "pass") })))
	require.Equal(t, credentialDenied, g.credential(req(func(r *http.Request) { r.SetBasicAuth("ops", "wrong") })))
}

func TestParseNetworks(t *testing.T) {
	networks, rejected := parseNetworks("10.1.2.3/8,192.0.2.7\n2001:db8::/32 bogus")
	require.Equal(t, []string{"bogus"}, rejected)
	require.Len(t, networks, 3)
	require.Equal(t, "10.0.0.0/8", networks[0].String())
	require.Equal(t, "192.0.2.7/32", networks[1].String())

	networks, rejected = parseNetworks("")
	require.Empty(t, networks)
	require.Empty(t, rejected)
}

func TestOpsGuard_DeniedRequestsAreCounted(t *testing.T) {
	h := OpsGuard(testConfig(), "server")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	before := counterValue(t, opsGuardDecisions.WithLabelValues(credentialDenied))

	req := httptest.NewRequest(http.MethodGet, "/debug/prometheus", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.InDelta(t, before+1, counterValue(t, opsGuardDecisions.WithLabelValues(credentialDenied)), 0)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
