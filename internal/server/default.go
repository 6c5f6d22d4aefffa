package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/middleware"
	"github.com/iota-uz/payroll-ledger/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
	Entrypoint    string
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.Entrypoint = options.Entrypoint
	loggerOpts.AllowlistPath = conf.RoutingAllowlistPath

	handlerOpts := ErrorHandlersOptions{
		Entrypoint:    options.Entrypoint,
		AllowlistPath: conf.RoutingAllowlistPath,
	}
	classifier := loadClassifier(handlerOpts)

	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger, loggerOpts),
		middleware.ProvidePool(options.Pool),
		middleware.OpsGuard(conf, options.Entrypoint),
		apiOnly(classifier.IsAPI, middleware.RequireActor(conf)),
	)

	return server.NewHTTPServer(
		app,
		NotFound(handlerOpts),
		MethodNotAllowed(handlerOpts),
	), nil
}

// apiOnly applies mw to requests whose path match accepts.
func apiOnly(match func(path string) bool, mw mux.MiddlewareFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match(r.URL.Path) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
