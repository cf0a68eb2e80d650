// Package scoring turns model output into scores. The native path builds an
// LLM-as-judge prompt and parses the structured reply; the RAGAS path scores
// each registry metric with an injected LLM.
package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// JudgeInput carries everything the judging prompt can embed.
type JudgeInput struct {
	Query          string
	Responses      []JudgeResponse
	Instructions   *resolver.AgentInstructions
	GoldenExamples []api.GoldenExample
	Context        string
	Criteria       []string
	MinScore       float64
}

// JudgeResponse is one candidate answer, labelled when several are judged
// together.
type JudgeResponse struct {
	Label   string
	Content string
}

// Verdict is the parsed judge reply.
type Verdict struct {
	Score          float64
	Passed         bool
	Reasoning      string
	CriteriaScores map[string]float64
}

// BuildPrompt renders the judging prompt. Sections are emitted only when
// their input is present.
func BuildPrompt(input JudgeInput) string {
	var b strings.Builder
	b.WriteString("You are an expert evaluator assessing the quality of an AI assistant's response.\n")
	b.WriteString("Judge strictly and return scores on a 0.0 to 1.0 scale.\n\n")

	b.WriteString("USER QUERY:\n")
	b.WriteString(input.Query)
	b.WriteString("\n\n")

	if len(input.Responses) == 1 && input.Responses[0].Label == "" {
		b.WriteString("RESPONSE:\n")
		b.WriteString(input.Responses[0].Content)
		b.WriteString("\n\n")
	} else {
		b.WriteString("RESPONSES:\n")
		for _, response := range input.Responses {
			label := response.Label
			if label == "" {
				label = "response"
			}
			fmt.Fprintf(&b, "[%s]\n%s\n", label, response.Content)
		}
		b.WriteString("\n")
	}

	if input.Instructions != nil {
		b.WriteString("AGENT INSTRUCTIONS:\n")
		if input.Instructions.Description != "" {
			b.WriteString(input.Instructions.Description)
			b.WriteString("\n")
		}
		if input.Instructions.SystemPrompt != "" {
			b.WriteString(input.Instructions.SystemPrompt)
			b.WriteString("\n")
		}
		if len(input.Instructions.ScopeHints) > 0 {
			b.WriteString("Evaluation scope rules:\n")
			for _, hint := range input.Instructions.ScopeHints {
				b.WriteString("- " + scopeRule(hint) + "\n")
			}
		}
		b.WriteString("\n")
	}

	if len(input.GoldenExamples) > 0 {
		b.WriteString("GOLDEN EXAMPLES (reference quality answers):\n")
		for i, example := range input.GoldenExamples {
			fmt.Fprintf(&b, "Example %d:\n  Input: %s\n  Expected: %s\n", i+1, example.Input, example.ExpectedOutput)
		}
		b.WriteString("\n")
	}

	if input.Context != "" {
		b.WriteString("RETRIEVED CONTEXT:\n")
		b.WriteString(input.Context)
		b.WriteString("\n\n")
	}

	criteria := input.Criteria
	if len(criteria) == 0 {
		criteria = []string{"relevance", "accuracy", "completeness", "clarity", "usefulness"}
	}
	b.WriteString("Evaluate the response on these criteria: ")
	b.WriteString(strings.Join(criteria, ", "))
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "A response passes when its overall score is at least %.2f.\n\n", input.MinScore)
	b.WriteString("Reply in exactly this format:\n")
	b.WriteString("SCORE: <overall score between 0.0 and 1.0>\n")
	b.WriteString("PASSED: <true or false>\n")
	b.WriteString("REASONING: <brief explanation>\n")
	b.WriteString("CRITERIA_SCORES: <criterion=score, criterion=score, ...>\n")
	return b.String()
}

func scopeRule(hint string) string {
	switch hint {
	case "should-refuse-non-scope":
		return "The agent should refuse or decline requests outside its declared scope; a correct refusal scores high."
	case "java8-specific":
		return "Answers must stay specific to Java 8; generic or newer-version answers score lower."
	case "prefers-concise-answers":
		return "The agent is expected to answer concisely; verbosity scores lower."
	case "should-cite-sources":
		return "The agent is expected to cite its sources."
	}
	return hint
}

// ParseVerdict extracts the structured fields from a judge reply. Scores
// above 1 are treated as a 0..100 scale and rescaled. PASSED defaults to
// score >= minScore when the marker is absent.
func ParseVerdict(reply string, minScore float64) (Verdict, error) {
	verdict := Verdict{CriteriaScores: map[string]float64{}}
	scoreSeen := false
	passedSeen := false

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SCORE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			score, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Verdict{}, fmt.Errorf("unparseable score %q", raw)
			}
			verdict.Score = clampScore(score)
			scoreSeen = true
		case strings.HasPrefix(line, "PASSED:"):
			raw := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "PASSED:")))
			verdict.Passed = raw == "true" || raw == "yes"
			passedSeen = true
		case strings.HasPrefix(line, "REASONING:"):
			verdict.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		case strings.HasPrefix(line, "CRITERIA_SCORES:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CRITERIA_SCORES:"))
			for _, pair := range strings.Split(raw, ",") {
				key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
				if !ok {
					continue
				}
				if score, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
					verdict.CriteriaScores[strings.TrimSpace(key)] = clampScore(score)
				}
			}
		}
	}

	if !scoreSeen {
		return Verdict{}, fmt.Errorf("judge reply contained no SCORE marker")
	}
	if !passedSeen {
		verdict.Passed = verdict.Score >= minScore
	}
	return verdict, nil
}

// clampScore rescales 0..100 replies and bounds the result to [0, 1].
func clampScore(score float64) float64 {
	if score > 1 {
		score = score / 100
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
