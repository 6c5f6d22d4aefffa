package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/routing"
)

type LoggerOptions struct {
	LogRequestBody bool
	MaxBodyLength  int

	Entrypoint    string
	AllowlistPath string
	Repanic       bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{LogRequestBody: true, MaxBodyLength: 512, Entrypoint: "server"}
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func getRealIP(r *http.Request, conf *configuration.Configuration) string {
	if addr := clientAddr(r, conf.RealIPHeader); addr.IsValid() {
		return addr.String()
	}
	return r.RemoteAddr
}

func getRequestID(r *http.Request, conf *configuration.Configuration) string {
	if v := strings.TrimSpace(r.Header.Get(conf.RequestIDHeader)); v != "" {
		return v
	}
	return uuid.New().String()
}

var tracer = otel.Tracer("payroll-ledger/middleware")

// WithLogger attaches a request-scoped logrus entry and request id to the
// context, opens an http.request span, logs the request outcome and turns
// handler panics into a 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	conf := configuration.Use()
	if opts.AllowlistPath == "" {
		opts.AllowlistPath = conf.RoutingAllowlistPath
	}
	rules, err := routing.LoadAllowlist(opts.AllowlistPath, opts.Entrypoint)
	if err != nil {
		logger.WithError(err).Warn("routing allowlist not loaded; panics render as text")
		rules = nil
	}
	classifier := routing.NewClassifier(rules)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, conf)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})

			if opts.LogRequestBody && r.Body != nil && r.Method != http.MethodGet &&
				strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
				bodyBuf := new(bytes.Buffer)
				if _, err := io.Copy(bodyBuf, r.Body); err != nil {
					fieldsLogger.WithError(err).Error("failed to read request-body")
					http.Error(w, "failed to read request-body", http.StatusInternalServerError)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(bodyBuf.Bytes()))
				body := bodyBuf.String()
				if opts.MaxBodyLength > 0 && len(body) > opts.MaxBodyLength {
					body = body[:opts.MaxBodyLength]
				}
				fieldsLogger.WithField("request-body", body).Debug("request-body captured")
			}

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(
				ctx,
				"http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", requestID),
					attribute.String("net.peer.ip", getRealIP(r, conf)),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
				fieldsLogger = fieldsLogger.WithField("trace-id", sc.TraceID().String())
			}
			w.Header().Set("X-Request-Id", requestID)

			ctx = composables.WithLogger(ctx, fieldsLogger)
			ctx = composables.WithRequestID(ctx, requestID)

			wrapped := &responseCaptureWriter{ResponseWriter: w}

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				fieldsLogger.WithFields(logrus.Fields{
					"panic":    recovered,
					"stack":    string(debug.Stack()),
					"duration": time.Since(start),
				}).Error("panic recovered in request handler")

				if !wrapped.statusWritten {
					if classifier.IsAPI(r.URL.Path) {
						wrapped.Header().Set("Content-Type", "application/json; charset=utf-8")
						wrapped.WriteHeader(http.StatusInternalServerError)
						_ = json.NewEncoder(wrapped).Encode(map[string]any{
							"code":    "INTERNAL_SERVER_ERROR",
							"message": "internal server error",
							"meta":    map[string]string{"request_id": requestID},
						})
					} else {
						http.Error(wrapped, "Internal Server Error", http.StatusInternalServerError)
					}
				}
				if opts.Repanic {
					panic(recovered)
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			statusCode := wrapped.Status()
			duration := time.Since(start)
			entry := fieldsLogger.WithFields(logrus.Fields{
				"duration":     duration,
				"status-code":  statusCode,
				"status-class": statusCode / 100,
			})
			if statusCode >= http.StatusInternalServerError {
				entry.Error("request completed")
			} else {
				entry.Info("request completed")
			}
			span.SetAttributes(
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
				attribute.Int("http.status_code", statusCode),
			)
		})
	}
}
