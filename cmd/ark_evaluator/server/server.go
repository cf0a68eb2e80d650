// Package server wires the HTTP surface: routing, request context
// construction, metrics middleware and the graceful lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mckinsey/ark-evaluator/internal/common"
	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/handlers"
	"github.com/mckinsey/ark-evaluator/internal/http_wrappers"
	"github.com/mckinsey/ark-evaluator/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// HandlerFunc is the wrapped handler signature used across the service.
type HandlerFunc func(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper)

type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *slog.Logger
}

func New(serviceConfig *config.Config, logger *slog.Logger, handler *handlers.Handler) *Server {
	mux := http.NewServeMux()

	wrap := func(fn HandlerFunc) http.Handler {
		return wrapHandler(serviceConfig, logger, fn)
	}
	mux.Handle("POST /evaluate", wrap(handler.HandleEvaluate))
	mux.Handle("GET /providers", wrap(handler.HandleListProviders))
	mux.Handle("GET /providers/{provider}/metrics", wrap(handler.HandleProviderMetrics))
	mux.Handle("GET /providers/{provider}/metrics/{metric}", wrap(handler.HandleProviderMetric))
	mux.Handle("GET /health", wrap(handler.HandleHealth))
	mux.Handle("GET /ready", wrap(handler.HandleReady))

	var root http.Handler = mux
	if serviceConfig.IsPrometheusEnabled() {
		path := serviceConfig.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
		root = metricsMiddleware(mux)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", serviceConfig.Service.Port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
		config: serviceConfig,
		logger: logger,
	}
}

// wrapHandler builds the per-request ExecutionContext: a request id taken
// from the inbound header or generated, an enriched logger, and the
// evaluation time budget.
func wrapHandler(serviceConfig *config.Config, logger *slog.Logger, fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = common.GUID()
		}
		w.Header().Set(requestIDHeader, requestID)

		requestLogger := logger.With(
			"request_id", requestID,
			"method", r.Method,
			"uri", r.RequestURI,
		)
		ctx := executioncontext.NewExecutionContext(r.Context(), requestID, requestLogger, serviceConfig.GetEvaluationTimeout())
		logging.LogRequestStarted(ctx)
		fn(ctx, http_wrappers.NewRequestWrapper(r), http_wrappers.NewResponseWrapper(w))
	})
}

// Start begins serving and touches the ready file once the listener is up.
// It blocks until the server stops; ErrServerClosed is a clean stop.
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.httpServer.Addr)
	s.touchReadyFile()
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	s.removeReadyFile()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) touchReadyFile() {
	path := s.config.Service.ReadyFile
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte("ready"), 0o644); err != nil {
		s.logger.Warn("Failed to write ready file", "path", path, "error", err)
	}
}

func (s *Server) removeReadyFile() {
	path := s.config.Service.ReadyFile
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove ready file", "path", path, "error", err)
	}
}

// SetTerminationMessage writes the reason for a fatal startup error where
// the kubelet picks it up for the pod status.
func SetTerminationMessage(serviceConfig *config.Config, logger *slog.Logger, message string) {
	path := GetTerminationFile(serviceConfig)
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		logger.Error("Failed to write termination message", "path", path, "error", err)
	}
}

func GetTerminationFile(serviceConfig *config.Config) string {
	if serviceConfig != nil && serviceConfig.Service != nil && serviceConfig.Service.TerminationFile != "" {
		return serviceConfig.Service.TerminationFile
	}
	return "/dev/termination-log"
}
