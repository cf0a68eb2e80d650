package providers

import (
	"context"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/ragas"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// RagasProvider scores requests with the RAGAS-style metric engine. It
// accepts direct and query evaluation types; metrics come from
// parameters["metrics"], defaulting to the registry defaults.
type RagasProvider struct {
	deps Deps
}

func (p *RagasProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeDirect, api.EvaluationTypeQuery}
}

func (p *RagasProvider) RequiredParameters() []string {
	return []string{constants.PARAM_METRICS}
}

func (p *RagasProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_RAGAS, request.Type)}
	return p.evaluate(ctx, request, response)
}

// evaluate is shared with the langfuse provider, which layers tracing on top
// of the same scoring path.
func (p *RagasProvider) evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest, response *api.EvaluationResponse) (*api.EvaluationResponse, error) {
	input, output, err := p.resolveContent(ctx, request)
	if err != nil {
		return nil, err
	}

	threshold, err := minScore(request.Parameters)
	if err != nil {
		return nil, err
	}

	requested := request.Parameters.GetStringList(constants.PARAM_METRICS)
	if len(requested) == 0 {
		requested = ragas.DefaultMetrics()
	}
	response.Metadata["requested_metrics"] = strings.Join(requested, ",")

	sample := ragas.NewSample(
		input,
		output,
		request.Parameters.GetStringList(constants.PARAM_CONTEXT),
		request.Parameters.GetString("ground_truth", ""),
	)
	valid, invalid, validationErrors := ragas.Partition(requested, sample)

	validNames := make([]string, 0, len(valid))
	for _, metric := range valid {
		validNames = append(validNames, metric.Name)
	}
	response.Metadata["valid_metrics"] = strings.Join(validNames, ",")
	response.Metadata["invalid_metrics"] = strings.Join(invalid, ",")
	for metric, message := range validationErrors {
		response.Metadata["validation_error_"+metric] = message
	}

	if len(valid) == 0 {
		messagesJoined := make([]string, 0, len(validationErrors))
		for metric, message := range validationErrors {
			messagesJoined = append(messagesJoined, metric+": "+message)
		}
		return nil, serviceerrors.NewServiceError(messages.NoValidMetrics, "Errors", strings.Join(messagesJoined, "; "))
	}

	model, err := scoring.BuildModelConfig(request.Parameters)
	if err != nil {
		return nil, err
	}
	response.Metadata["llm_provider"] = model.Type

	engine := scoring.NewRagasEngine(p.deps.LLM, model, ctx.Logger)
	entry := ragas.PrepareDataset(valid, sample)

	var scores []scoring.MetricScore
	err = otel.WithSpan(ctx.Ctx, p.deps.Config, ctx.Logger, "providers", "ragas_evaluate", nil, func(spanCtx context.Context) error {
		var engineErr error
		scores, response.TokenUsage, engineErr = engine.EvaluateMetrics(spanCtx, valid, entry, llmParams(request.Parameters))
		return engineErr
	})
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.EvaluationFailed, "Error", err.Error())
	}

	for _, score := range scores {
		response.Metadata["metric_"+score.Metric] = api.FormatAggregateScore(score.Score)
		if score.Fallback {
			response.Metadata["metric_"+score.Metric+"_fallback"] = "true"
		}
	}

	response.WithScore(scoring.Average(scores), threshold)
	return response, nil
}

// resolveContent extracts the judged (input, output) pair, dereferencing the
// query ref for query-type requests.
func (p *RagasProvider) resolveContent(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (string, string, error) {
	if request.Type == api.EvaluationTypeDirect {
		return request.Config.Input, request.Config.Output, nil
	}
	queryRef := request.Config.QueryRef
	if queryRef == nil || queryRef.Name == "" {
		return "", "", serviceerrors.NewServiceError(messages.RequestValidationFailed, "Error", "query evaluation requires config.queryRef.name")
	}
	namespace := queryRef.Namespace
	if namespace == "" {
		namespace = "default"
	}
	query, err := p.deps.Resolver.ResolveQuery(ctx.Ctx, queryRef.Name, namespace)
	if err != nil {
		return "", "", err
	}
	output := ""
	if query.Status != nil {
		targetType, targetName := splitTarget(queryRef.ResponseTarget)
		for _, candidate := range query.Status.Responses {
			if queryRef.ResponseTarget == "" || matchesTarget(candidate.Target, targetType, targetName) {
				output = candidate.Content
				break
			}
		}
	}
	return query.Spec.Input, output, nil
}
