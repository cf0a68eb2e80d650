package providers

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// baselineWorkers bounds the per-example fan-out.
const baselineWorkers = 8

// BaselineProvider runs every golden example through generate-then-judge and
// aggregates the outcomes overall and per category/difficulty.
type BaselineProvider struct {
	deps Deps
}

func (p *BaselineProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeBaseline}
}

func (p *BaselineProvider) RequiredParameters() []string {
	return []string{constants.PARAM_GOLDEN_EXAMPLES}
}

// exampleResult is one example's outcome. Failed examples carry score 0 and
// the error message; they never abort the run.
type exampleResult struct {
	example api.GoldenExample
	score   float64
	passed  bool
	usage   api.TokenUsage
	err     error
}

func (p *BaselineProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_ARK, api.EvaluationTypeBaseline)}

	examples, err := request.Parameters.GetGoldenExamples(constants.PARAM_GOLDEN_EXAMPLES)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidParameter, "ParameterName", constants.PARAM_GOLDEN_EXAMPLES, "Error", err.Error())
	}
	if len(examples) == 0 {
		return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", constants.PARAM_GOLDEN_EXAMPLES)
	}

	model, err := p.deps.resolveRequestModel(ctx, request.Parameters, nil)
	if err != nil {
		return nil, err
	}
	response.Metadata["model_name"] = model.Model
	response.Metadata["model_source"] = model.Source

	threshold, err := minScore(request.Parameters)
	if err != nil {
		return nil, err
	}
	params := llmParams(request.Parameters)

	results := make([]exampleResult, len(examples))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx.Ctx)
	group.SetLimit(baselineWorkers)
	for i, example := range examples {
		group.Go(func() error {
			result := p.runExample(groupCtx, example, model, params, threshold)
			mu.Lock()
			results[i] = result
			mu.Unlock()
			// only cancellation aborts the run
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, serviceerrors.NewServiceError(messages.EvaluationTimeout, "Budget", p.deps.Config.GetEvaluationTimeout().String())
		}
		return nil, err
	}

	p.aggregate(response, results, threshold)
	return response, nil
}

func (p *BaselineProvider) runExample(ctx context.Context, example api.GoldenExample, model *resolver.ModelConfig, params llm.Params, threshold float64) exampleResult {
	result := exampleResult{example: example}

	generated, generateUsage, err := p.deps.LLM.ChatComplete(ctx, example.Input, model, params)
	result.usage.Add(generateUsage)
	if err != nil {
		result.err = err
		return result
	}

	exampleThreshold := threshold
	if example.ExpectedMinScore != nil {
		exampleThreshold = *example.ExpectedMinScore
	}
	verdict, judgeUsage, err := p.deps.Judge.Evaluate(ctx, scoring.JudgeInput{
		Query:          example.Input,
		Responses:      []scoring.JudgeResponse{{Content: generated}},
		GoldenExamples: []api.GoldenExample{example},
		MinScore:       exampleThreshold,
	}, model, params)
	result.usage.Add(judgeUsage)
	if err != nil {
		result.err = err
		return result
	}

	result.score = verdict.Score
	result.passed = verdict.Passed
	return result
}

// aggregate fills the response with the overall and per-tag rollups. The
// metadata stays flat because the downstream controller stores it on CRD
// annotations.
func (p *BaselineProvider) aggregate(response *api.EvaluationResponse, results []exampleResult, threshold float64) {
	type bucket struct {
		count  int
		passed int
		total  float64
	}
	categories := map[string]*bucket{}
	difficulties := map[string]*bucket{}
	fill := func(m map[string]*bucket, key string, result exampleResult) {
		if key == "" {
			return
		}
		b := m[key]
		if b == nil {
			b = &bucket{}
			m[key] = b
		}
		b.count++
		b.total += result.score
		if result.passed {
			b.passed++
		}
	}

	passed := 0
	failed := 0
	totalScore := 0.0
	for i, result := range results {
		totalScore += result.score
		if result.passed {
			passed++
		} else {
			failed++
		}
		if result.err != nil {
			response.Metadata["example_"+formatCount(i)+"_error"] = result.err.Error()
		}
		response.TokenUsage.Add(result.usage)
		fill(categories, result.example.Category, result)
		fill(difficulties, result.example.Difficulty, result)
	}

	averageScore := 0.0
	if len(results) > 0 {
		averageScore = totalScore / float64(len(results))
	}

	response.Metadata["total"] = formatCount(len(results))
	response.Metadata["passed_count"] = formatCount(passed)
	response.Metadata["failed_count"] = formatCount(failed)
	response.Metadata["pass_rate"] = api.FormatAggregateScore(float64(passed) / float64(len(results)))

	emit := func(prefix string, buckets map[string]*bucket) {
		for key, b := range buckets {
			response.Metadata[prefix+key+"_count"] = formatCount(b.count)
			response.Metadata[prefix+key+"_passed"] = formatCount(b.passed)
			response.Metadata[prefix+key+"_avg_score"] = api.FormatAggregateScore(b.total / float64(b.count))
			response.Metadata[prefix+key+"_pass_rate"] = api.FormatAggregateScore(float64(b.passed) / float64(b.count))
		}
	}
	emit("category_", categories)
	emit("difficulty_", difficulties)

	response.WithScore(averageScore, threshold)
}
