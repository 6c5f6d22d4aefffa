package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

// stubPayroll implements only what each test sets; other calls panic.
type stubPayroll struct {
	PayrollAPI

	importRun   func(services.Actor, services.ImportRunInput) (*services.ImportRunResult, error)
	finalize    func(services.Actor, uuid.UUID, services.FinalizeOptions) (*services.FinalizeResult, error)
	list        func(services.Actor, services.LiabilityFilter) (*services.ListLiabilitiesResult, error)
	createBatch func(services.Actor, uuid.UUID, services.CreateBatchInput) (*services.CreatePaymentBatchResult, error)
	applySync   func(services.Actor, services.SyncFilter) (*services.SettlementSyncResult, error)
	reverse     func(services.Actor, uuid.UUID, services.ReverseInput) (*services.ReverseRunResult, error)
}

func (s *stubPayroll) ImportRun(ctx context.Context, a services.Actor, in services.ImportRunInput) (*services.ImportRunResult, error) {
	return s.importRun(a, in)
}

func (s *stubPayroll) FinalizeRun(ctx context.Context, a services.Actor, id uuid.UUID, o services.FinalizeOptions) (*services.FinalizeResult, error) {
	return s.finalize(a, id, o)
}

func (s *stubPayroll) ListLiabilities(ctx context.Context, a services.Actor, f services.LiabilityFilter) (*services.ListLiabilitiesResult, error) {
	return s.list(a, f)
}

func (s *stubPayroll) CreatePaymentBatchFromLiabilities(ctx context.Context, a services.Actor, id uuid.UUID, in services.CreateBatchInput) (*services.CreatePaymentBatchResult, error) {
	return s.createBatch(a, id, in)
}

func (s *stubPayroll) ApplySettlementSync(ctx context.Context, a services.Actor, f services.SyncFilter) (*services.SettlementSyncResult, error) {
	return s.applySync(a, f)
}

func (s *stubPayroll) ReverseRun(ctx context.Context, a services.Actor, id uuid.UUID, in services.ReverseInput) (*services.ReverseRunResult, error) {
	return s.reverse(a, id, in)
}

type harness struct {
	router   *mux.Router
	tenantID uuid.UUID
	userID   uuid.UUID
}

func newHarness(p PayrollAPI) *harness {
	h := &harness{router: mux.NewRouter(), tenantID: uuid.New(), userID: uuid.New()}
	NewPayrollAPIController(p).Register(h.router)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := composables.WithTenantID(req.Context(), h.tenantID)
	ctx = composables.WithUserID(ctx, h.userID)
	ctx = composables.WithRequestID(ctx, "req-1")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpapi.ErrorEnvelope {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestImportRun_MapsRowsAndActor(t *testing.T) {
	var got services.ImportRunInput
	var gotActor services.Actor
	h := newHarness(&stubPayroll{importRun: func(a services.Actor, in services.ImportRunInput) (*services.ImportRunResult, error) {
		got, gotActor = in, a
		return &services.ImportRunResult{Run: domain.Run{ID: uuid.New(), Status: domain.RunStatusImported}}, nil
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs:import", map[string]any{
		"legal_entity_code": " LE-01 ",
		"provider_code":     "ACME",
		"period":            "2026-03",
		"pay_date":          "2026-03-31",
		"currency":          "usd",
		"rows": []map[string]any{
			{"employee_code": "E-001", "employee_name": "Ann", "base_salary": "1000", "net_pay": "800", "employee_tax": "200"},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, h.tenantID, gotActor.TenantID)
	require.Equal(t, h.userID, gotActor.UserID)
	require.Equal(t, "req-1", gotActor.RequestID)
	require.Equal(t, "LE-01", got.LegalEntityCode)
	require.Equal(t, "USD", got.Currency)
	require.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), *got.PayDate)
	require.Len(t, got.Rows, 1)
	require.True(t, got.Rows[0].Amounts.NetPay.NearlyEqual(money.FromInt(800)))
}

func TestImportRun_ValidationErrors(t *testing.T) {
	h := newHarness(&stubPayroll{})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs:import", map[string]any{
		"legal_entity_code": "LE-01",
		"period":            "March",
		"rows":              []map[string]any{{"employee_name": "no code"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, codeInvalidBody, env.Code)
	require.Contains(t, env.Details, "provider_code")
	require.Contains(t, env.Details, "period")
	require.Contains(t, env.Details, "rows[0].employee_code")

	rec = h.do(t, http.MethodPost, "/payroll/api/runs:import", `{"rows": [], "unexpected": 1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid json body", decodeEnvelope(t, rec).Message)
}

func TestImportRun_TargetShellNeedsNoHeader(t *testing.T) {
	shellID := uuid.New()
	var got services.ImportRunInput
	h := newHarness(&stubPayroll{importRun: func(a services.Actor, in services.ImportRunInput) (*services.ImportRunResult, error) {
		got = in
		return &services.ImportRunResult{}, nil
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs:import", map[string]any{
		"target_run_id": shellID,
		"rows":          []map[string]any{{"employee_code": "E-001", "net_pay": "10"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, shellID, *got.TargetRunID)
	require.Nil(t, got.PayDate)
}

func TestFinalizeRun_StatusCodes(t *testing.T) {
	runID := uuid.New()
	replay := false
	var gotOpts services.FinalizeOptions
	h := newHarness(&stubPayroll{finalize: func(a services.Actor, id uuid.UUID, o services.FinalizeOptions) (*services.FinalizeResult, error) {
		require.Equal(t, runID, id)
		gotOpts = o
		return &services.FinalizeResult{JournalNumber: "PAYROLL-ACCRUAL-1", IdempotentReplay: replay}, nil
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs/"+runID.String()+":finalize", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.False(t, gotOpts.ForceFromImported)

	replay = true
	rec = h.do(t, http.MethodPost, "/payroll/api/runs/"+runID.String()+":finalize", map[string]any{"force_from_imported": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotOpts.ForceFromImported)

	rec = h.do(t, http.MethodPost, "/payroll/api/runs/not-a-uuid:finalize", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinalizeRun_RendersPeriodLocked(t *testing.T) {
	leID := uuid.New()
	h := newHarness(&stubPayroll{finalize: func(services.Actor, uuid.UUID, services.FinalizeOptions) (*services.FinalizeResult, error) {
		return nil, &services.PeriodLockedError{LegalEntityID: leID, Period: "2026-03", Action: services.ActionPayrollFinalize, Reason: "period closed"}
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs/"+uuid.NewString()+":finalize", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, services.CodePeriodLocked, env.Code)
	require.Equal(t, "2026-03", env.Details["period"])
	require.Equal(t, "req-1", env.Meta["request_id"])
}

func TestListLiabilities_ParsesFilter(t *testing.T) {
	runID := uuid.New()
	var got services.LiabilityFilter
	h := newHarness(&stubPayroll{list: func(a services.Actor, f services.LiabilityFilter) (*services.ListLiabilitiesResult, error) {
		got = f
		return &services.ListLiabilitiesResult{Liabilities: []domain.Liability{}}, nil
	}})

	rec := h.do(t, http.MethodGet, "/payroll/api/liabilities?run_id="+runID.String()+"&status=open,in_batch&status=PAID&group=statutory&limit=50&offset=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, runID, *got.RunID)
	require.Equal(t, []domain.LiabilityStatus{domain.LiabilityOpen, domain.LiabilityInBatch, domain.LiabilityPaid}, got.Statuses)
	require.Equal(t, domain.GroupStatutory, *got.Group)
	require.Equal(t, 50, got.Limit)
	require.Equal(t, 10, got.Offset)

	rec = h.do(t, http.MethodGet, "/payroll/api/liabilities?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidQuery, decodeEnvelope(t, rec).Code)
}

func TestCreatePaymentBatch(t *testing.T) {
	runID := uuid.New()
	h := newHarness(&stubPayroll{createBatch: func(a services.Actor, id uuid.UUID, in services.CreateBatchInput) (*services.CreatePaymentBatchResult, error) {
		require.Equal(t, domain.ScopeNetPay, in.Scope)
		require.Equal(t, "batch-1", in.IdempotencyKey)
		return &services.CreatePaymentBatchResult{RunID: id, Idempotent: true}, nil
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/runs/"+runID.String()+"/payment-batches", map[string]any{
		"scope": "net_pay", "idempotency_key": " batch-1 ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/payroll/api/runs/"+runID.String()+"/payment-batches", map[string]any{"scope": "SOME"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "oneof=NET_PAY STATUTORY ALL", env.Details["scope"])
	require.Equal(t, "required", env.Details["idempotency_key"])
}

func TestApplySettlementSync_EmptyBodyAndOverride(t *testing.T) {
	var got services.SyncFilter
	h := newHarness(&stubPayroll{applySync: func(a services.Actor, f services.SyncFilter) (*services.SettlementSyncResult, error) {
		got = f
		return &services.SettlementSyncResult{Items: []services.SettlementSyncItem{}}, nil
	}})

	rec := h.do(t, http.MethodPost, "/payroll/api/settlements:apply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, got.AllowEvidenceFreeSettlement)

	rec = h.do(t, http.MethodPost, "/payroll/api/settlements:apply", map[string]any{"allow_evidence_free_settlement": false, "limit": 20})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.AllowEvidenceFreeSettlement)
	require.False(t, *got.AllowEvidenceFreeSettlement)
	require.Equal(t, 20, got.Limit)
}

func TestReverseRun_RequiresReasonAndMapsBlocked(t *testing.T) {
	h := newHarness(&stubPayroll{reverse: func(services.Actor, uuid.UUID, services.ReverseInput) (*services.ReverseRunResult, error) {
		return nil, &services.ServiceError{Status: http.StatusConflict, Code: services.CodeReversalBlocked, Message: "release the batch or use a RETRO correction"}
	}})
	path := "/payroll/api/runs/" + uuid.NewString() + ":reverse"

	rec := h.do(t, http.MethodPost, path, map[string]any{"reason": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, path, map[string]any{"reason": "duplicate upload"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, services.CodeReversalBlocked, decodeEnvelope(t, rec).Code)
}

func TestRequireActor_RejectsMissingIdentity(t *testing.T) {
	router := mux.NewRouter()
	NewPayrollAPIController(&stubPayroll{}).Register(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/api/liabilities", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, decodeEnvelope(t, rec).Code)
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

type stubQuerier struct {
	rows map[string]stubRow
}

func (q stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "payroll_outbox") {
		return q.rows["outbox"]
	}
	return q.rows["db"]
}

func TestHealthController(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-10 * time.Minute)
	c := NewHealthController(stubQuerier{rows: map[string]stubRow{
		"db": {scan: func(dest ...any) error { *dest[0].(*int) = 1; return nil }},
		"outbox": {scan: func(dest ...any) error {
			*dest[0].(*int64) = 3
			*dest[1].(*int64) = 1
			*dest[2].(**time.Time) = &oldest
			return nil
		}},
	}})
	c.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	c.Get(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, healthStatusDegraded, body.Status)
	require.Equal(t, healthStatusDegraded, body.Checks["outbox"].Status)
	require.Equal(t, float64(3), body.Checks["outbox"].Details["pending"])

	down := NewHealthController(nil)
	rec = httptest.NewRecorder()
	down.Get(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegister_WrongMethodIsJSON405(t *testing.T) {
	h := newHarness(&stubPayroll{})

	rec := h.do(t, http.MethodGet, "/payroll/api/runs:import", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
	require.Equal(t, http.MethodGet, env.Meta["method"])
	require.Equal(t, "req-1", env.Meta["request_id"])

	rec = h.do(t, http.MethodDelete, "/payroll/api/mappings", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegister_InheritsParentErrorHandlers(t *testing.T) {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", "parent")
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	NewPayrollAPIController(&stubPayroll{}).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/payroll/api/runs/"+uuid.NewString()+":finalize", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "parent", rec.Header().Get("X-Handler"))
}
