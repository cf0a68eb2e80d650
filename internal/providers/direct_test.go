package providers_test

import (
	"strings"
	"testing"

	"github.com/mckinsey/ark-evaluator/internal/providers"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

func TestDirectEvaluate(t *testing.T) {
	server, prompts := chatServer(t, fixedReply("SCORE: 0.9\nPASSED: true\nREASONING: correct and concise"))
	defer server.Close()

	registry := providers.NewRegistry(newDeps(nil, server))
	response, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "What is the capital of France?", Output: "Paris"}, nil))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if response.Score == nil || *response.Score != "0.90" {
		t.Errorf("score = %v, want 0.90", response.Score)
	}
	if !response.Passed {
		t.Error("passed = false")
	}
	if response.Metadata["provider"] != "ark" || response.Metadata["evaluation_type"] != "direct" {
		t.Errorf("metadata = %v", response.Metadata)
	}
	if response.Metadata["model_name"] != "judge-model" || response.Metadata["model_source"] != "process-default" {
		t.Errorf("model metadata = %v", response.Metadata)
	}
	if response.Metadata["reasoning"] != "correct and concise" {
		t.Errorf("reasoning = %q", response.Metadata["reasoning"])
	}
	if response.TokenUsage.TotalTokens != 12 {
		t.Errorf("token usage = %+v", response.TokenUsage)
	}

	judged := prompts.all()
	if len(judged) != 1 {
		t.Fatalf("judge called %d times, want 1", len(judged))
	}
	if !strings.Contains(judged[0], "What is the capital of France?") || !strings.Contains(judged[0], "Paris") {
		t.Errorf("prompt should embed the judged pair:\n%s", judged[0])
	}
}

func TestDirectMinScoreOverride(t *testing.T) {
	server, prompts := chatServer(t, fixedReply("SCORE: 0.85"))
	defer server.Close()

	registry := providers.NewRegistry(newDeps(nil, server))
	response, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{"min-score": 0.9}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// PASSED is absent from the reply, so the threshold decides
	if *response.Score != "0.85" || response.Passed {
		t.Errorf("score = %s passed = %v, want 0.85 below the 0.9 threshold", *response.Score, response.Passed)
	}
	if prompt := prompts.all()[0]; !strings.Contains(prompt, "at least 0.90") {
		t.Errorf("prompt should state the threshold:\n%s", prompt)
	}
}

func TestDirectRejectsOutOfRangeThreshold(t *testing.T) {
	server, prompts := chatServer(t, fixedReply("SCORE: 0.9"))
	defer server.Close()

	registry := providers.NewRegistry(newDeps(nil, server))
	_, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{"min-score": 1.5}))
	if err == nil || !strings.Contains(err.Error(), "min-score") {
		t.Errorf("err = %v, want min-score rejection", err)
	}

	_, err = registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{"threshold": -0.1}))
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Errorf("err = %v, want threshold rejection", err)
	}
	if calls := prompts.all(); len(calls) != 0 {
		t.Errorf("judge called %d times, want 0", len(calls))
	}
}

func TestDirectRequiresInputAndOutput(t *testing.T) {
	registry := providers.NewRegistry(newDeps(nil, nil))
	_, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "only input"}, nil))
	if err == nil || !strings.Contains(err.Error(), "config.input and config.output") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestDirectRejectsMalformedGoldenExamples(t *testing.T) {
	server, _ := chatServer(t, fixedReply("SCORE: 1.0"))
	defer server.Close()

	registry := providers.NewRegistry(newDeps(nil, server))
	_, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{"golden-examples": "not json"}))
	if err == nil || !strings.Contains(err.Error(), "golden-examples") {
		t.Errorf("err = %v, want invalid parameter", err)
	}
}

func TestDirectEmbedsGoldenExamplesAndContext(t *testing.T) {
	server, prompts := chatServer(t, fixedReply("SCORE: 0.8"))
	defer server.Close()

	registry := providers.NewRegistry(newDeps(nil, server))
	response, err := registry.Dispatch(testCtx(), evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{
			"golden-examples": `[{"input": "2+2", "expectedOutput": "4"}]`,
			"context":         "arithmetic facts",
			"context_source":  "knowledge-base",
		}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if response.Metadata["context_source"] != "knowledge-base" {
		t.Errorf("context_source = %q", response.Metadata["context_source"])
	}
	prompt := prompts.all()[0]
	if !strings.Contains(prompt, "GOLDEN EXAMPLES") || !strings.Contains(prompt, "2+2") {
		t.Errorf("prompt should embed the golden examples:\n%s", prompt)
	}
	if !strings.Contains(prompt, "RETRIEVED CONTEXT:\narithmetic facts") {
		t.Errorf("prompt should embed the context:\n%s", prompt)
	}
}
