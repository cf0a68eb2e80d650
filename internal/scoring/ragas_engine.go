package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/ragas"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// NaNFallbackScore replaces scores the engine cannot produce. Its use is
// recorded in response metadata.
const NaNFallbackScore = 0.7

// MetricScore is one metric's outcome, with Fallback set when the engine
// returned NaN or an unparseable value.
type MetricScore struct {
	Metric   string
	Score    float64
	Fallback bool
}

// RagasEngine scores registry metrics one at a time with an injected LLM.
type RagasEngine struct {
	client *llm.Client
	model  *resolver.ModelConfig
	logger *slog.Logger
}

func NewRagasEngine(client *llm.Client, model *resolver.ModelConfig, logger *slog.Logger) *RagasEngine {
	return &RagasEngine{client: client, model: model, logger: logger}
}

// EvaluateMetrics scores the dataset entry on each metric. Per-metric model
// failures propagate; NaN and unparseable scores fall back to the documented
// default so one pathological metric does not sink the evaluation.
func (e *RagasEngine) EvaluateMetrics(ctx context.Context, metrics []*ragas.Metric, entry map[string]any, params llm.Params) ([]MetricScore, api.TokenUsage, error) {
	scores := make([]MetricScore, 0, len(metrics))
	var usage api.TokenUsage
	for _, metric := range metrics {
		prompt, err := metricPrompt(metric, entry)
		if err != nil {
			return nil, usage, err
		}
		reply, callUsage, err := e.client.ChatComplete(ctx, prompt, e.model, params)
		usage.Add(callUsage)
		if err != nil {
			return nil, usage, fmt.Errorf("metric %s: %w", metric.Name, err)
		}
		score, ok := parseMetricScore(reply)
		if !ok || math.IsNaN(score) {
			e.logger.Warn("Metric produced no usable score, applying fallback", "metric", metric.Name)
			scores = append(scores, MetricScore{Metric: metric.Name, Score: NaNFallbackScore, Fallback: true})
			continue
		}
		scores = append(scores, MetricScore{Metric: metric.Name, Score: clampScore(score)})
	}
	return scores, usage, nil
}

// Average returns the mean score, 0 when no metrics were scored.
func Average(scores []MetricScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0.0
	for _, score := range scores {
		total += score.Score
	}
	return total / float64(len(scores))
}

func metricPrompt(metric *ragas.Metric, entry map[string]any) (string, error) {
	encoded, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are scoring the %q metric: %s\n\n", metric.EngineName, metric.Description)
	b.WriteString("DATA:\n")
	b.Write(encoded)
	b.WriteString("\n\nReply with a single line:\nSCORE: <value between 0.0 and 1.0>\n")
	return b.String(), nil
}

func parseMetricScore(reply string) (float64, bool) {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if raw, ok := strings.CutPrefix(line, "SCORE:"); ok {
			score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return 0, false
			}
			return score, true
		}
	}
	// some models reply with the bare number
	if score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64); err == nil {
		return score, true
	}
	return 0, false
}
