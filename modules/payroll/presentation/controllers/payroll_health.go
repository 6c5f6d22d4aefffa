package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
)

type healthStatus string

const (
	healthStatusHealthy  healthStatus = "healthy"
	healthStatusDegraded healthStatus = "degraded"
	healthStatusDown     healthStatus = "down"
)

const (
	outboxPendingDegradedThreshold = int64(1000)
	outboxOldestAvailableDegraded  = 5 * time.Minute
	dbDegradedLatency              = 100 * time.Millisecond
)

type healthResponse struct {
	Status    healthStatus               `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]componentHealth `json:"checks"`
}

type componentHealth struct {
	Status       healthStatus   `json:"status"`
	ResponseTime string         `json:"responseTime,omitempty"`
	Error        string         `json:"error,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type HealthController struct {
	db  Querier
	now func() time.Time
}

func NewHealthController(db Querier) *HealthController {
	return &HealthController{db: db, now: time.Now}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	checks := map[string]componentHealth{
		"database": c.checkDatabase(r.Context()),
		"outbox":   c.checkOutbox(r.Context()),
	}
	overall := healthStatusHealthy
	for _, h := range checks {
		overall = mergeHealthStatus(overall, h.Status)
	}

	status := http.StatusOK
	if overall == healthStatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:    overall,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func mergeHealthStatus(current, next healthStatus) healthStatus {
	if next == healthStatusDown {
		return healthStatusDown
	}
	if next == healthStatusDegraded && current == healthStatusHealthy {
		return healthStatusDegraded
	}
	return current
}

func (c *HealthController) checkDatabase(ctx context.Context) componentHealth {
	start := time.Now()
	if c.db == nil {
		return componentHealth{Status: healthStatusDown, Error: "database connection pool not available"}
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	err := c.db.QueryRow(timeoutCtx, "SELECT 1").Scan(&result)
	elapsed := time.Since(start)
	if err != nil {
		return componentHealth{
			Status:       healthStatusDown,
			ResponseTime: elapsed.String(),
			Error:        fmt.Sprintf("database query failed: %v", err),
		}
	}
	status := healthStatusHealthy
	if elapsed > dbDegradedLatency {
		status = healthStatusDegraded
	}
	return componentHealth{Status: status, ResponseTime: elapsed.String()}
}

// checkOutbox reports the unpublished backlog across tenants.
func (c *HealthController) checkOutbox(ctx context.Context) componentHealth {
	start := time.Now()
	if c.db == nil {
		return componentHealth{Status: healthStatusDown, Error: "database connection pool not available"}
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		pending, locked int64
		oldest          *time.Time
	)
	err := c.db.QueryRow(timeoutCtx, `
		SELECT count(*),
		       count(*) FILTER (WHERE locked_at IS NOT NULL),
		       min(available_at)
		FROM payroll_outbox
		WHERE published_at IS NULL
		`).Scan(&pending, &locked, &oldest)
	if err != nil {
		return componentHealth{
			Status:       healthStatusDown,
			ResponseTime: time.Since(start).String(),
			Error:        fmt.Sprintf("outbox query failed: %v", err),
		}
	}

	status := healthStatusHealthy
	details := map[string]any{"pending": pending, "locked": locked}
	if oldest != nil {
		age := c.now().Sub(*oldest)
		details["oldest_available_age"] = age.Truncate(time.Second).String()
		if age > outboxOldestAvailableDegraded {
			status = healthStatusDegraded
		}
	}
	if pending > outboxPendingDegradedThreshold {
		status = healthStatusDegraded
	}
	return componentHealth{Status: status, ResponseTime: time.Since(start).String(), Details: details}
}
