package providers

import (
	"context"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/events"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/expr"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// EventProvider scores weighted rules over the Kubernetes event stream. It
// needs no model; resolver failures elsewhere do not apply here.
type EventProvider struct {
	deps Deps
}

func (p *EventProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeEvent}
}

func (p *EventProvider) RequiredParameters() []string {
	return []string{constants.PARAM_QUERY_NAME}
}

func (p *EventProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_ARK, api.EvaluationTypeEvent)}

	if len(request.Config.Rules) == 0 {
		return nil, serviceerrors.NewServiceError(messages.RequestValidationFailed, "Error", "event evaluation requires config.rules")
	}
	queryName := request.Parameters.GetString(constants.PARAM_QUERY_NAME, "")
	if queryName == "" {
		return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", constants.PARAM_QUERY_NAME)
	}
	namespace := request.Parameters.GetString(constants.PARAM_QUERY_NAMESPACE, "default")
	sessionID := request.Parameters.GetString(constants.PARAM_SESSION_ID, "")

	analyzer := events.NewAnalyzer(p.deps.K8s, namespace, queryName, sessionID, ctx.Logger)
	err := otel.WithSpan(ctx.Ctx, p.deps.Config, ctx.Logger, "providers", "load_events", map[string]string{"query": queryName}, func(spanCtx context.Context) error {
		return analyzer.Load(spanCtx)
	})
	if err != nil {
		return nil, err
	}
	response.Metadata["events_analyzed"] = formatCount(len(analyzer.GetEvents(events.ScopeAll, nil, 0)))

	evaluator, err := expr.NewEvaluator(analyzer, ctx.Logger)
	if err != nil {
		return nil, err
	}

	score, results := evaluator.ScoreRules(request.Config.Rules)
	for _, result := range results {
		outcome := "failed"
		if result.Passed {
			outcome = "passed"
		}
		response.Metadata["rule_"+result.Name] = outcome
		if result.Error != nil {
			response.Metadata["rule_"+result.Name+"_error"] = result.Error.Error()
		}
	}

	threshold, err := minScore(request.Parameters)
	if err != nil {
		return nil, err
	}
	formatted := api.FormatAggregateScore(score)
	response.Score = &formatted
	response.Passed = score >= threshold
	return response, nil
}
