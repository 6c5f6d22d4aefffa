package routinggates

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
)

func TestAPIErrorContracts_JSONOnly_For404And405(t *testing.T) {
	router := buildMainServerHTTPServer(t).Router()

	t.Run("404_internal_api_is_json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withIdentity(httptest.NewRequest(http.MethodGet, "http://example.com/payroll/api/__nonexistent__", nil))
		req.Header.Set("X-Request-ID", "req-404")
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
		require.Contains(t, rr.Header().Get("Content-Type"), "application/json")

		var payload httpapi.ErrorEnvelope
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
		require.Equal(t, "NOT_FOUND", payload.Code)
		require.Equal(t, "/payroll/api/__nonexistent__", payload.Meta["path"])
		require.Equal(t, "req-404", payload.Meta["request_id"])
	})

	t.Run("405_internal_api_is_json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withIdentity(httptest.NewRequest(http.MethodGet, "http://example.com/payroll/api/runs:import", nil))
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		var payload httpapi.ErrorEnvelope
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
		require.Equal(t, "METHOD_NOT_ALLOWED", payload.Code)
		require.Equal(t, http.MethodGet, payload.Meta["method"])
	})

	t.Run("404_outside_api_is_text", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/__nonexistent__", nil))

		require.Equal(t, http.StatusNotFound, rr.Code)
		require.NotContains(t, rr.Header().Get("Content-Type"), "application/json")
	})
}
