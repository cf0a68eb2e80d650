package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mckinsey/ark-evaluator/cmd/ark_evaluator/server"
	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/handlers"
	"github.com/mckinsey/ark-evaluator/internal/k8s"
	"github.com/mckinsey/ark-evaluator/internal/langfuse"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/logging"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/providers"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/validation"
)

// Overridden at build time with -ldflags.
var (
	version   = "dev"
	build     = "unknown"
	buildDate = "unknown"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	logger, loggerShutdown, err := logging.NewLogger()
	if err != nil {
		logger = logging.FallbackLogger()
		logger.Error("Failed to initialize logger, using fallback", "error", err)
	} else {
		defer func() { _ = loggerShutdown() }()
	}

	serviceConfig, err := config.LoadConfig(logger, version, build, buildDate, os.Getenv("CONFIG_DIR"))
	if err != nil {
		startUpFailed(serviceConfig, logger, "failed to load configuration: "+err.Error())
	}
	logger.Info("Configuration loaded", "port", serviceConfig.Service.Port, "version", version, "build", build)
	llm.SetRequestTimeout(serviceConfig.GetRequestTimeout())

	validate, err := validation.NewValidator()
	if err != nil {
		startUpFailed(serviceConfig, logger, "failed to initialize validator: "+err.Error())
	}

	k8sClient, err := k8s.GetClient(logger)
	if err != nil {
		if !errors.Is(err, k8s.ErrNoKubernetes) {
			startUpFailed(serviceConfig, logger, "failed to initialize kubernetes client: "+err.Error())
		}
		serviceConfig.Service.LocalMode = true
		logger.Info("Running without Kubernetes, resource resolution uses the process default model")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.SetupOTEL(ctx, serviceConfig.OTEL, logger)
	if err != nil {
		startUpFailed(serviceConfig, logger, "failed to initialize tracing: "+err.Error())
	}

	sink := buildSink(serviceConfig, logger)
	judge := scoring.NewJudge(llm.NewClient(logger), logger)
	registry := providers.NewRegistry(providers.Deps{
		Resolver: resolver.New(k8sClient, serviceConfig.DefaultModel, logger),
		LLM:      llm.NewClient(logger),
		Judge:    judge,
		K8s:      k8sClient,
		Sink:     sink,
		Config:   serviceConfig,
		Logger:   logger,
	})

	srv := server.New(serviceConfig, logger, handlers.New(validate, registry, serviceConfig))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			startUpFailed(serviceConfig, logger, "server failed: "+err.Error())
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	if err := sink.Flush(shutdownCtx); err != nil {
		logger.Error("Trace sink flush failed", "error", err)
	}
	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Error("Tracing shutdown failed", "error", err)
		}
	}
	llm.CloseSharedHTTPClient()
	logger.Info("Shutdown complete")
}

// buildSink wires the process-wide Langfuse sink from environment
// credentials; without them traces are dropped.
func buildSink(serviceConfig *config.Config, logger *slog.Logger) langfuse.Sink {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if host == "" || publicKey == "" || secretKey == "" {
		return langfuse.NoopSink{}
	}
	logger.Info("Langfuse trace sink enabled", "host", host)
	return langfuse.NewHTTPSink(host, publicKey, secretKey, llm.SharedHTTPClient(), logger)
}

// startUpFailed records the failure reason for the kubelet and exits
// non-zero.
func startUpFailed(serviceConfig *config.Config, logger *slog.Logger, message string) {
	logger.Error("Startup failed", "error", message)
	server.SetTerminationMessage(serviceConfig, logger, message)
	os.Exit(1)
}
