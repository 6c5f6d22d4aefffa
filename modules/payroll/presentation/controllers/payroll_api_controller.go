package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/presentation/controllers/dtos"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/httpapi"
)

// PayrollAPI is the part of *services.PayrollService the HTTP layer calls.
type PayrollAPI interface {
	ImportRun(ctx context.Context, actor services.Actor, in services.ImportRunInput) (*services.ImportRunResult, error)
	PreviewAccrual(ctx context.Context, actor services.Actor, runID uuid.UUID) (*services.AccrualPreview, error)
	ReviewRun(ctx context.Context, actor services.Actor, runID uuid.UUID) (*services.ReviewResult, error)
	FinalizeRun(ctx context.Context, actor services.Actor, runID uuid.UUID, opts services.FinalizeOptions) (*services.FinalizeResult, error)
	BuildLiabilities(ctx context.Context, actor services.Actor, runID uuid.UUID) (*services.BuildLiabilitiesResult, error)
	ListLiabilities(ctx context.Context, actor services.Actor, f services.LiabilityFilter) (*services.ListLiabilitiesResult, error)
	PreviewPaymentBatch(ctx context.Context, actor services.Actor, runID uuid.UUID, scope domain.BatchScope) (*services.PaymentBatchPreview, error)
	CreatePaymentBatchFromLiabilities(ctx context.Context, actor services.Actor, runID uuid.UUID, in services.CreateBatchInput) (*services.CreatePaymentBatchResult, error)
	PreviewSettlementSync(ctx context.Context, actor services.Actor, f services.SyncFilter) (*services.SettlementSyncResult, error)
	ApplySettlementSync(ctx context.Context, actor services.Actor, f services.SyncFilter) (*services.SettlementSyncResult, error)
	CreateCorrectionShell(ctx context.Context, actor services.Actor, in services.ShellInput) (*services.CorrectionShellResult, error)
	ReverseRun(ctx context.Context, actor services.Actor, runID uuid.UUID, in services.ReverseInput) (*services.ReverseRunResult, error)
	ListRunCorrections(ctx context.Context, actor services.Actor, runID uuid.UUID) ([]domain.Correction, error)
	ListComponentMappings(ctx context.Context, actor services.Actor, f services.MappingFilter) ([]domain.ComponentMapping, error)
	UpsertComponentMapping(ctx context.Context, actor services.Actor, in services.UpsertMappingInput) (*services.UpsertMappingResult, error)
	ResolveComponentMapping(ctx context.Context, actor services.Actor, in services.ResolveMappingInput) (services.MappingResolution, error)
}

var _ PayrollAPI = (*services.PayrollService)(nil)

const (
	codeInvalidBody  = "PAYROLL_INVALID_BODY"
	codeInvalidQuery = "PAYROLL_INVALID_QUERY"
	codeUnauthorized = "PAYROLL_UNAUTHORIZED"

	maxBodyBytes = 8 << 20
)

type PayrollAPIController struct {
	payroll   PayrollAPI
	apiPrefix string
}

func NewPayrollAPIController(payroll PayrollAPI) *PayrollAPIController {
	return &PayrollAPIController{
		payroll:   payroll,
		apiPrefix: "/payroll/api",
	}
}

func (c *PayrollAPIController) Key() string {
	return c.apiPrefix
}

func (c *PayrollAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	// A subrouter answers unmatched requests itself, so it needs the
	// parent's JSON handlers or a wrong method surfaces as a 404.
	api.NotFoundHandler = r.NotFoundHandler
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	if api.MethodNotAllowedHandler == nil {
		api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}

	api.HandleFunc("/runs:import", c.ImportRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/accrual-preview", c.PreviewAccrual).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}:review", c.ReviewRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}:finalize", c.FinalizeRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}:reverse", c.ReverseRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/corrections", c.ListRunCorrections).Methods(http.MethodGet)

	api.HandleFunc("/runs/{id}/liabilities:build", c.BuildLiabilities).Methods(http.MethodPost)
	api.HandleFunc("/liabilities", c.ListLiabilities).Methods(http.MethodGet)

	api.HandleFunc("/runs/{id}/payment-batches:preview", c.PreviewPaymentBatch).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/payment-batches", c.CreatePaymentBatch).Methods(http.MethodPost)

	api.HandleFunc("/settlements:preview", c.PreviewSettlementSync).Methods(http.MethodPost)
	api.HandleFunc("/settlements:apply", c.ApplySettlementSync).Methods(http.MethodPost)

	api.HandleFunc("/corrections", c.CreateCorrectionShell).Methods(http.MethodPost)

	api.HandleFunc("/mappings", c.ListMappings).Methods(http.MethodGet)
	api.HandleFunc("/mappings", c.UpsertMapping).Methods(http.MethodPost)
	api.HandleFunc("/mappings:resolve", c.ResolveMapping).Methods(http.MethodGet)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	meta := map[string]string{"method": r.Method, "path": r.URL.Path}
	if requestID := composables.UseRequestID(r.Context()); requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", meta)
}

// requireActor builds the caller from the identity the actor middleware put
// on the context.
func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	requestID := composables.UseRequestID(r.Context())
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, codeUnauthorized, "tenant is required", nil)
		return services.Actor{}, false
	}
	userID, err := composables.UseUserID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, codeUnauthorized, "user is required", nil)
		return services.Actor{}, false
	}
	return services.Actor{TenantID: tenantID, UserID: userID, RequestID: requestID}, true
}

func runIDFromPath(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "run id is invalid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (c *PayrollAPIController) ImportRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req dtos.ImportRunDTO
	if !decodeBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidBody, err.Error(), nil)
		return
	}
	res, err := c.payroll.ImportRun(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *PayrollAPIController) PreviewAccrual(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	res, err := c.payroll.PreviewAccrual(r.Context(), actor, runID)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayrollAPIController) ReviewRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	res, err := c.payroll.ReviewRun(r.Context(), actor, runID)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayrollAPIController) FinalizeRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	var req dtos.FinalizeRunDTO
	if !decodeOptionalBody(w, r, actor.RequestID, &req) {
		return
	}
	res, err := c.payroll.FinalizeRun(r.Context(), actor, runID, services.FinalizeOptions{ForceFromImported: req.ForceFromImported})
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	status := http.StatusCreated
	if res.IdempotentReplay {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (c *PayrollAPIController) BuildLiabilities(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	res, err := c.payroll.BuildLiabilities(r.Context(), actor, runID)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyBuilt {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (c *PayrollAPIController) ListLiabilities(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var f services.LiabilityFilter
	var err error
	if f.RunID, err = optionalUUID(q.Get("run_id")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "run_id is invalid", nil)
		return
	}
	if f.LegalEntityID, err = optionalUUID(q.Get("legal_entity_id")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "legal_entity_id is invalid", nil)
		return
	}
	for _, s := range splitList(q["status"]) {
		f.Statuses = append(f.Statuses, domain.LiabilityStatus(strings.ToUpper(s)))
	}
	if g := strings.ToUpper(strings.TrimSpace(q.Get("group"))); g != "" {
		group := domain.LiabilityGroup(g)
		f.Group = &group
	}
	if f.Limit, err = optionalInt(q.Get("limit")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "limit is invalid", nil)
		return
	}
	if f.Offset, err = optionalInt(q.Get("offset")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "offset is invalid", nil)
		return
	}
	res, err := c.payroll.ListLiabilities(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayrollAPIController) PreviewPaymentBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	scope := domain.BatchScope(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("scope"))))
	if scope == "" {
		scope = domain.ScopeAll
	}
	res, err := c.payroll.PreviewPaymentBatch(r.Context(), actor, runID, scope)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayrollAPIController) CreatePaymentBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	var req dtos.CreatePaymentBatchDTO
	if !decodeBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	res, err := c.payroll.CreatePaymentBatchFromLiabilities(r.Context(), actor, runID, req.ToInput())
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (c *PayrollAPIController) PreviewSettlementSync(w http.ResponseWriter, r *http.Request) {
	c.settlementSync(w, r, c.payroll.PreviewSettlementSync)
}

func (c *PayrollAPIController) ApplySettlementSync(w http.ResponseWriter, r *http.Request) {
	c.settlementSync(w, r, c.payroll.ApplySettlementSync)
}

func (c *PayrollAPIController) settlementSync(
	w http.ResponseWriter,
	r *http.Request,
	run func(context.Context, services.Actor, services.SyncFilter) (*services.SettlementSyncResult, error),
) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req dtos.SettlementSyncDTO
	if !decodeOptionalBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	res, err := run(r.Context(), actor, req.ToFilter())
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayrollAPIController) CreateCorrectionShell(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req dtos.CorrectionShellDTO
	if !decodeBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidBody, err.Error(), nil)
		return
	}
	res, err := c.payroll.CreateCorrectionShell(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (c *PayrollAPIController) ReverseRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	var req dtos.ReverseRunDTO
	if !decodeBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	res, err := c.payroll.ReverseRun(r.Context(), actor, runID, services.ReverseInput{
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	status := http.StatusCreated
	if res.IdempotentReplay {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (c *PayrollAPIController) ListRunCorrections(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	runID, ok := runIDFromPath(w, r, actor.RequestID)
	if !ok {
		return
	}
	items, err := c.payroll.ListRunCorrections(r.Context(), actor, runID)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	if items == nil {
		items = []domain.Correction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": items})
}

func (c *PayrollAPIController) ListMappings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := services.MappingFilter{
		ProviderCode:  strings.TrimSpace(q.Get("provider_code")),
		Currency:      strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
		ComponentCode: strings.TrimSpace(q.Get("component_code")),
	}
	var err error
	if f.LegalEntityID, err = optionalUUID(q.Get("legal_entity_id")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "legal_entity_id is invalid", nil)
		return
	}
	if f.AsOf, err = optionalDate(q.Get("as_of")); err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "as_of is invalid", nil)
		return
	}
	items, err := c.payroll.ListComponentMappings(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	if items == nil {
		items = []domain.ComponentMapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": items})
}

func (c *PayrollAPIController) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req dtos.UpsertMappingDTO
	if !decodeBody(w, r, actor.RequestID, &req) {
		return
	}
	if errs, ok := req.Ok(); !ok {
		writeValidationError(w, actor.RequestID, errs)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidBody, err.Error(), nil)
		return
	}
	res, err := c.payroll.UpsertComponentMapping(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *PayrollAPIController) ResolveMapping(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	leID, err := uuid.Parse(q.Get("legal_entity_id"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "legal_entity_id is required", nil)
		return
	}
	asOf, err := optionalDate(q.Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, actor.RequestID, codeInvalidQuery, "as_of is invalid", nil)
		return
	}
	in := services.ResolveMappingInput{
		LegalEntityID: leID,
		ProviderCode:  strings.TrimSpace(q.Get("provider_code")),
		Currency:      strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
		ComponentCode: strings.TrimSpace(q.Get("component_code")),
		RequiredSide:  domain.EntrySide(strings.ToUpper(strings.TrimSpace(q.Get("required_side")))),
	}
	if asOf != nil {
		in.AsOf = *asOf
	}
	res, err := c.payroll.ResolveComponentMapping(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, actor.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, requestID string, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidBody, "invalid json body", nil)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, requestID string, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidBody, "invalid json body", nil)
		return false
	}
	return true
}

func optionalUUID(v string) (*uuid.UUID, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func optionalDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// splitList accepts both repeated and comma separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string, details map[string]any) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteJSON(w, status, &httpapi.ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
		Details: details,
	})
}

func writeValidationError(w http.ResponseWriter, requestID string, fields map[string]string) {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidBody, "request validation failed", details)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	_ = httpapi.WriteServiceError(w, requestID, services.CodeInternal, err)
}
