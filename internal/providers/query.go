package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"

	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// QueryProvider judges the recorded responses of a Query custom resource.
type QueryProvider struct {
	deps Deps
}

func (p *QueryProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeQuery}
}

func (p *QueryProvider) RequiredParameters() []string {
	return nil
}

func (p *QueryProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_ARK, api.EvaluationTypeQuery)}

	queryRef := request.Config.QueryRef
	if queryRef == nil || queryRef.Name == "" {
		return nil, serviceerrors.NewServiceError(messages.RequestValidationFailed, "Error", "query evaluation requires config.queryRef.name")
	}
	namespace := queryRef.Namespace
	if namespace == "" {
		namespace = "default"
	}

	query, err := p.deps.Resolver.ResolveQuery(ctx.Ctx, queryRef.Name, namespace)
	if err != nil {
		return nil, err
	}
	response.Metadata["query_name"] = query.Name
	if query.Status != nil {
		response.Metadata["query_phase"] = query.Status.Phase
		if query.Status.Duration != nil {
			response.Metadata["query_duration_seconds"] = fmt.Sprintf("%g", query.Status.Duration.Seconds)
		}
	}

	responses, instructions, err := p.selectResponses(ctx.Ctx, query, queryRef.ResponseTarget, namespace, response.Metadata)
	if err != nil {
		return nil, err
	}

	model, err := p.deps.resolveRequestModel(ctx, request.Parameters, query)
	if err != nil {
		return nil, err
	}
	response.Metadata["model_name"] = model.Model
	response.Metadata["model_source"] = model.Source

	threshold, err := minScore(request.Parameters)
	if err != nil {
		return nil, err
	}
	input := scoring.JudgeInput{
		Query:        query.Spec.Input,
		Responses:    responses,
		Instructions: instructions,
		Context:      request.Parameters.GetString(constants.PARAM_CONTEXT, ""),
		Criteria:     request.Parameters.GetStringList(constants.PARAM_CRITERIA),
		MinScore:     threshold,
	}

	var verdict scoring.Verdict
	err = otel.WithSpan(ctx.Ctx, p.deps.Config, ctx.Logger, "providers", "judge_query", map[string]string{"query": query.Name}, func(spanCtx context.Context) error {
		var judgeErr error
		verdict, response.TokenUsage, judgeErr = p.deps.Judge.Evaluate(spanCtx, input, model, llmParams(request.Parameters))
		return judgeErr
	})
	if err != nil {
		return nil, err
	}

	applyVerdict(response, verdict)
	return response, nil
}

// selectResponses picks the judged content. A responseTarget of "name" or
// "type:name" selects one response; a missing match yields an empty output
// and evaluation proceeds, with the miss recorded in metadata. Without a
// target every recorded response is judged, labelled "type:name".
func (p *QueryProvider) selectResponses(ctx context.Context, query *arkv1alpha1.Query, responseTarget, namespace string, metadata map[string]string) ([]scoring.JudgeResponse, *resolver.AgentInstructions, error) {
	var recorded []arkv1alpha1.QueryResponse
	if query.Status != nil {
		recorded = query.Status.Responses
	}

	if responseTarget != "" {
		metadata["response_target"] = responseTarget
		targetType, targetName := splitTarget(responseTarget)
		for _, candidate := range recorded {
			if !matchesTarget(candidate.Target, targetType, targetName) {
				continue
			}
			metadata["response_target_found"] = "true"
			instructions, err := p.agentInstructionsFor(ctx, candidate.Target, namespace)
			if err != nil {
				return nil, nil, err
			}
			return []scoring.JudgeResponse{{Content: candidate.Content}}, instructions, nil
		}
		metadata["response_target_found"] = "false"
		return []scoring.JudgeResponse{{Content: ""}}, nil, nil
	}

	if len(recorded) == 0 {
		return []scoring.JudgeResponse{{Content: ""}}, nil, nil
	}
	responses := make([]scoring.JudgeResponse, 0, len(recorded))
	for _, candidate := range recorded {
		responses = append(responses, scoring.JudgeResponse{
			Label:   candidate.Target.Type + ":" + candidate.Target.Name,
			Content: candidate.Content,
		})
	}
	instructions, err := p.agentInstructionsFor(ctx, recorded[0].Target, namespace)
	if err != nil {
		return nil, nil, err
	}
	return responses, instructions, nil
}

func (p *QueryProvider) agentInstructionsFor(ctx context.Context, target arkv1alpha1.QueryTarget, namespace string) (*resolver.AgentInstructions, error) {
	if target.Type != "agent" {
		return nil, nil
	}
	return p.deps.Resolver.ResolveAgent(ctx, target.Name, namespace)
}

// splitTarget parses "type:name" compounds; a bare token is a name.
func splitTarget(responseTarget string) (string, string) {
	if targetType, targetName, ok := strings.Cut(responseTarget, ":"); ok {
		return targetType, targetName
	}
	return "", responseTarget
}

func matchesTarget(target arkv1alpha1.QueryTarget, targetType, targetName string) bool {
	if targetType != "" && target.Type != targetType {
		return false
	}
	return target.Name == targetName
}
