package providers

import (
	"strconv"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// BatchProvider aggregates the recorded outcomes of referenced Evaluation
// resources: passed is the conjunction, score the average of the children
// that carry one.
type BatchProvider struct {
	deps Deps
}

func (p *BatchProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeBatch}
}

func (p *BatchProvider) RequiredParameters() []string {
	return nil
}

func (p *BatchProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_ARK, api.EvaluationTypeBatch)}

	if len(request.Config.Evaluations) == 0 {
		return nil, serviceerrors.NewServiceError(messages.RequestValidationFailed, "Error", "batch evaluation requires config.evaluations")
	}
	if p.deps.K8s == nil {
		return nil, serviceerrors.NewServiceError(messages.NoKubernetes, "Error", "batch aggregation requires cluster access")
	}

	allPassed := true
	scored := 0
	totalScore := 0.0
	for _, ref := range request.Config.Evaluations {
		namespace := ref.Namespace
		if namespace == "" {
			namespace = "default"
		}
		evaluation, err := p.deps.K8s.GetEvaluation(ctx.Ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		if evaluation.Status == nil {
			response.Metadata["evaluation_"+ref.Name] = "pending"
			allPassed = false
			continue
		}
		outcome := "failed"
		if evaluation.Status.Passed {
			outcome = "passed"
		}
		response.Metadata["evaluation_"+ref.Name] = outcome
		allPassed = allPassed && evaluation.Status.Passed

		if evaluation.Status.Score != "" {
			score, err := strconv.ParseFloat(evaluation.Status.Score, 64)
			if err == nil {
				totalScore += score
				scored++
			}
		}
		if usage := evaluation.Status.TokenUsage; usage != nil {
			response.TokenUsage.Add(api.TokenUsage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			})
		}
	}

	response.Metadata["evaluations_total"] = formatCount(len(request.Config.Evaluations))
	response.Metadata["evaluations_scored"] = formatCount(scored)

	if scored > 0 {
		average := totalScore / float64(scored)
		formatted := api.FormatScore(average)
		response.Score = &formatted
	}
	response.Passed = allPassed
	return response, nil
}
