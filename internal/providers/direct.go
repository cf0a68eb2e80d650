package providers

import (
	"context"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// DirectProvider judges a single (input, output) pair with the LLM judge.
type DirectProvider struct {
	deps Deps
}

func (p *DirectProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeDirect}
}

func (p *DirectProvider) RequiredParameters() []string {
	return nil
}

func (p *DirectProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_ARK, api.EvaluationTypeDirect)}

	if request.Config.Input == "" || request.Config.Output == "" {
		return nil, serviceerrors.NewServiceError(messages.RequestValidationFailed, "Error", "direct evaluation requires config.input and config.output")
	}

	model, err := p.deps.resolveRequestModel(ctx, request.Parameters, nil)
	if err != nil {
		return nil, err
	}
	response.Metadata["model_name"] = model.Model
	response.Metadata["model_source"] = model.Source

	goldenExamples, err := request.Parameters.GetGoldenExamples(constants.PARAM_GOLDEN_EXAMPLES)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidParameter, "ParameterName", constants.PARAM_GOLDEN_EXAMPLES, "Error", err.Error())
	}
	if source := request.Parameters.GetString(constants.PARAM_CONTEXT_SOURCE, ""); source != "" {
		response.Metadata["context_source"] = source
	}

	threshold, err := minScore(request.Parameters)
	if err != nil {
		return nil, err
	}
	input := scoring.JudgeInput{
		Query:          request.Config.Input,
		Responses:      []scoring.JudgeResponse{{Content: request.Config.Output}},
		GoldenExamples: goldenExamples,
		Context:        request.Parameters.GetString(constants.PARAM_CONTEXT, ""),
		Criteria:       request.Parameters.GetStringList(constants.PARAM_CRITERIA),
		MinScore:       threshold,
	}

	var verdict scoring.Verdict
	err = otel.WithSpan(ctx.Ctx, p.deps.Config, ctx.Logger, "providers", "judge_direct", nil, func(spanCtx context.Context) error {
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
