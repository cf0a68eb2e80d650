package scoring_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/ragas"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel answers each chat completion with the next reply in order.
func scriptedModel(t *testing.T, replies ...string) (*llm.Client, *resolver.ModelConfig, func()) {
	t.Helper()
	index := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if index >= len(replies) {
			t.Errorf("unexpected extra model call %d", index+1)
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		content, _ := json.Marshal(replies[index])
		index++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + string(content) + `}}],` +
			`"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`))
	}))
	client := llm.NewClientWithHTTP(server.Client(), discardLog())
	model := &resolver.ModelConfig{Model: "judge", BaseURL: server.URL, APIKey: "k"}
	return client, model, server.Close
}

func metricsByName(t *testing.T, names ...string) []*ragas.Metric {
	t.Helper()
	out := make([]*ragas.Metric, 0, len(names))
	for _, name := range names {
		metric, ok := ragas.Lookup(name)
		if !ok {
			t.Fatalf("unknown metric %q", name)
		}
		out = append(out, metric)
	}
	return out
}

func TestEvaluateMetrics(t *testing.T) {
	client, model, done := scriptedModel(t, "SCORE: 0.9", "0.6")
	defer done()

	engine := scoring.NewRagasEngine(client, model, discardLog())
	scores, usage, err := engine.EvaluateMetrics(context.Background(),
		metricsByName(t, "relevance", "correctness"),
		map[string]any{"user_input": "q", "response": "a", "reference": "truth"},
		llm.Params{})
	if err != nil {
		t.Fatalf("EvaluateMetrics: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if scores[0].Score != 0.9 || scores[0].Fallback {
		t.Errorf("relevance = %+v", scores[0])
	}
	// bare-number replies parse too
	if scores[1].Score != 0.6 || scores[1].Fallback {
		t.Errorf("correctness = %+v", scores[1])
	}
	if usage.TotalTokens != 24 {
		t.Errorf("usage = %+v, want both calls summed", usage)
	}
	if average := scoring.Average(scores); math.Abs(average-0.75) > 1e-9 {
		t.Errorf("Average = %v, want 0.75", average)
	}
}

func TestEvaluateMetricsFallback(t *testing.T) {
	client, model, done := scriptedModel(t, "SCORE: NaN", "I cannot score this")
	defer done()

	engine := scoring.NewRagasEngine(client, model, discardLog())
	scores, _, err := engine.EvaluateMetrics(context.Background(),
		metricsByName(t, "relevance", "similarity"),
		map[string]any{"response": "a", "reference": "truth"},
		llm.Params{})
	if err != nil {
		t.Fatalf("EvaluateMetrics: %v", err)
	}
	for _, score := range scores {
		if !score.Fallback || score.Score != scoring.NaNFallbackScore {
			t.Errorf("%s = %+v, want fallback %v", score.Metric, score, scoring.NaNFallbackScore)
		}
	}
}

func TestEvaluateMetricsModelFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := llm.NewClientWithHTTP(server.Client(), discardLog())
	model := &resolver.ModelConfig{Model: "judge", BaseURL: server.URL, APIKey: "k"}
	engine := scoring.NewRagasEngine(client, model, discardLog())
	_, _, err := engine.EvaluateMetrics(context.Background(),
		metricsByName(t, "relevance"),
		map[string]any{"user_input": "q", "response": "a"},
		llm.Params{})
	if err == nil || !strings.Contains(err.Error(), "relevance") {
		t.Errorf("err = %v, want metric-tagged failure", err)
	}
}

func TestAverageEmpty(t *testing.T) {
	if got := scoring.Average(nil); got != 0 {
		t.Errorf("Average(nil) = %v", got)
	}
}

func TestJudgeEvaluate(t *testing.T) {
	client, model, done := scriptedModel(t, "SCORE: 0.9\nPASSED: true\nREASONING: solid answer")
	defer done()

	judge := scoring.NewJudge(client, discardLog())
	verdict, usage, err := judge.Evaluate(context.Background(), scoring.JudgeInput{
		Query:     "What is 2+2?",
		Responses: []scoring.JudgeResponse{{Content: "4"}},
		MinScore:  0.7,
	}, model, llm.Params{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Score != 0.9 || !verdict.Passed || verdict.Reasoning != "solid answer" {
		t.Errorf("verdict = %+v", verdict)
	}
	if usage.TotalTokens != 12 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestJudgeEvaluateUnparseableReply(t *testing.T) {
	client, model, done := scriptedModel(t, "I refuse to answer in the requested format")
	defer done()

	judge := scoring.NewJudge(client, discardLog())
	if _, _, err := judge.Evaluate(context.Background(), scoring.JudgeInput{
		Query:     "q",
		Responses: []scoring.JudgeResponse{{Content: "a"}},
	}, model, llm.Params{}); err == nil {
		t.Error("unparseable reply should error")
	}
}
