// Package handlers is the HTTP facade: JSON decode, schema validation,
// dispatcher invocation and error translation. Handlers receive an
// ExecutionContext and request/response wrappers so they can be exercised
// with fakes.
package handlers

import (
	"context"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/http_wrappers"
	"github.com/mckinsey/ark-evaluator/internal/logging"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/providers"
	"github.com/mckinsey/ark-evaluator/internal/ragas"
	"github.com/mckinsey/ark-evaluator/internal/serialization"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

type Handler struct {
	validate *validator.Validate
	registry *providers.Registry
	config   *config.Config
}

func New(validate *validator.Validate, registry *providers.Registry, serviceConfig *config.Config) *Handler {
	return &Handler{
		validate: validate,
		registry: registry,
		config:   serviceConfig,
	}
}

// HandleEvaluate serves POST /evaluate.
func (h *Handler) HandleEvaluate(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	body, err := r.BodyAsBytes()
	if err != nil {
		logging.LogRequestFailed(ctx, http.StatusBadRequest, err.Error())
		w.Error(err, ctx.RequestID)
		return
	}

	request := &api.EvaluationRequest{}
	if err := serialization.Unmarshal(h.validate, ctx, body, request); err != nil {
		logging.LogRequestFailed(ctx, statusOf(err), err.Error())
		w.Error(err, ctx.RequestID)
		return
	}

	evaluationCtx, cancel := context.WithTimeout(ctx.Ctx, h.config.GetEvaluationTimeout())
	defer cancel()

	response, err := h.registry.Dispatch(ctx.WithContext(evaluationCtx), request)
	if err != nil {
		status := statusOf(err)
		logging.LogRequestFailed(ctx, status, err.Error())
		if status >= http.StatusInternalServerError {
			// the evaluation was attempted and failed: the caller gets the
			// response shape with a null score so "not judged" stays
			// distinguishable from "judged and failed"
			w.WriteJSON(failureResponse(err), status)
			return
		}
		w.Error(err, ctx.RequestID)
		return
	}

	logging.LogRequestSuccess(ctx, http.StatusOK)
	w.WriteJSON(response, http.StatusOK)
}

// HandleListProviders serves GET /providers.
func (h *Handler) HandleListProviders(ctx *executioncontext.ExecutionContext, _ http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	logging.LogRequestSuccess(ctx, http.StatusOK)
	w.WriteJSON(h.registry.Providers(), http.StatusOK)
}

// HandleProviderMetrics serves GET /providers/{provider}/metrics.
func (h *Handler) HandleProviderMetrics(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	provider, err := h.metricsProvider(r)
	if err != nil {
		logging.LogRequestFailed(ctx, statusOf(err), err.Error())
		w.Error(err, ctx.RequestID)
		return
	}

	list := ragas.DescribeAll()
	list.Provider = provider
	logging.LogRequestSuccess(ctx, http.StatusOK)
	w.WriteJSON(list, http.StatusOK)
}

// HandleProviderMetric serves GET /providers/{provider}/metrics/{metric}.
func (h *Handler) HandleProviderMetric(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	provider, err := h.metricsProvider(r)
	if err != nil {
		logging.LogRequestFailed(ctx, statusOf(err), err.Error())
		w.Error(err, ctx.RequestID)
		return
	}

	metricName := r.PathValue(constants.PATH_PARAMETER_METRIC)
	if metricName == "" {
		err := serviceerrors.NewServiceError(messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_METRIC)
		logging.LogRequestFailed(ctx, statusOf(err), err.Error())
		w.Error(err, ctx.RequestID)
		return
	}
	list, err := ragas.Describe([]string{metricName})
	if err != nil {
		notFound := serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", "Metric", "Namespace", provider, "Name", metricName)
		logging.LogRequestFailed(ctx, statusOf(notFound), notFound.Error())
		w.Error(notFound, ctx.RequestID)
		return
	}

	logging.LogRequestSuccess(ctx, http.StatusOK)
	w.WriteJSON(list.Metrics[0], http.StatusOK)
}

// HandleHealth serves GET /health.
func (h *Handler) HandleHealth(_ *executioncontext.ExecutionContext, _ http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	w.WriteJSON(map[string]string{
		"status":  "healthy",
		"version": h.config.Service.Version,
	}, http.StatusOK)
}

// HandleReady serves GET /ready.
func (h *Handler) HandleReady(_ *executioncontext.ExecutionContext, _ http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	w.WriteJSON(map[string]string{"status": "ready"}, http.StatusOK)
}

func (h *Handler) metricsProvider(r http_wrappers.RequestWrapper) (string, error) {
	provider := r.PathValue(constants.PATH_PARAMETER_PROVIDER)
	if provider == "" {
		return "", serviceerrors.NewServiceError(messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_PROVIDER)
	}
	if !h.registry.HasOSSProvider(provider) {
		return "", serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", "Provider", "Namespace", "-", "Name", provider)
	}
	return provider, nil
}

func statusOf(err error) int {
	if serviceError, ok := serviceerrors.AsServiceError(err); ok {
		return serviceError.StatusCode()
	}
	return http.StatusInternalServerError
}

// failureResponse renders a failed evaluation: null score, passed false,
// human-readable error plus a structured error type.
func failureResponse(err error) *api.EvaluationResponse {
	errorType := "internal_error"
	code := ""
	if serviceError, ok := serviceerrors.AsServiceError(err); ok {
		code = serviceError.Code.GetCode()
		switch serviceError.Code {
		case messages.UpstreamRequestFailed:
			errorType = "upstream_failure"
		case messages.EvaluationFailed:
			errorType = "evaluation_error"
		case messages.EvaluationTimeout:
			errorType = "timeout"
		case messages.NoKubernetes:
			errorType = "no_kubernetes"
		}
	}
	metadata := map[string]string{"error_type": errorType}
	if code != "" {
		metadata["message_code"] = code
	}
	return &api.EvaluationResponse{
		Score:    nil,
		Passed:   false,
		Metadata: metadata,
		Error:    err.Error(),
	}
}
