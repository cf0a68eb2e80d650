package scoring

import (
	"context"
	"log/slog"

	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// Judge scores candidate responses with an LLM acting as evaluator.
type Judge struct {
	client *llm.Client
	logger *slog.Logger
}

func NewJudge(client *llm.Client, logger *slog.Logger) *Judge {
	return &Judge{client: client, logger: logger}
}

// Evaluate builds the judging prompt, calls the model and parses the
// structured verdict. Token usage covers the judging call itself.
func (j *Judge) Evaluate(ctx context.Context, input JudgeInput, model *resolver.ModelConfig, params llm.Params) (Verdict, api.TokenUsage, error) {
	prompt := BuildPrompt(input)
	reply, usage, err := j.client.ChatComplete(ctx, prompt, model, params)
	if err != nil {
		return Verdict{}, usage, err
	}
	verdict, err := ParseVerdict(reply, input.MinScore)
	if err != nil {
		j.logger.Error("Failed to parse judge reply", "error", err)
		return Verdict{}, usage, err
	}
	return verdict, usage, nil
}
