package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iota-uz/payroll-ledger/pkg/application"
)

const DefaultPath = "/debug/prometheus"

// PrometheusController exposes the payroll and outbox collectors for
// scraping. Path must be classified as ops in the routing allowlist so the
// ops guard covers it.
type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewPrometheusController(path string) application.Controller {
	return NewPrometheusControllerFor(path, prometheus.DefaultGatherer)
}

func NewPrometheusControllerFor(path string, gatherer prometheus.Gatherer) *PrometheusController {
	if path == "" {
		path = DefaultPath
	}
	return &PrometheusController{path: path, gatherer: gatherer}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})).Methods(http.MethodGet)
}
