package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EvaluationType selects the config variant of an evaluation request.
type EvaluationType string

const (
	EvaluationTypeDirect   EvaluationType = "direct"
	EvaluationTypeBaseline EvaluationType = "baseline"
	EvaluationTypeQuery    EvaluationType = "query"
	EvaluationTypeBatch    EvaluationType = "batch"
	EvaluationTypeEvent    EvaluationType = "event"
)

// EvaluationRequest is the unified request body for POST /evaluate.
// Exactly one config variant must be populated for the given type; the
// invariant is enforced by a struct-level validation registered in
// internal/validation.
type EvaluationRequest struct {
	Type          EvaluationType   `json:"type" validate:"required,oneof=direct baseline query batch event"`
	EvaluatorName string           `json:"evaluatorName,omitempty"`
	Config        EvaluationConfig `json:"config"`
	Parameters    Parameters       `json:"parameters,omitempty"`
}

// EvaluationConfig is the variant-typed request config. Only the fields for
// the request's type are expected; baseline requests carry an empty config and
// pass golden examples through parameters["golden-examples"].
type EvaluationConfig struct {
	// direct
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	// query
	QueryRef *QueryRef `json:"queryRef,omitempty"`
	// batch
	Evaluations []EvaluationRef `json:"evaluations,omitempty"`
	// event
	Rules []EventRule `json:"rules,omitempty"`
}

// QueryRef references a Query custom resource. ResponseTarget is either a
// bare name or a "type:name" compound selecting one of the query's responses.
type QueryRef struct {
	Name           string `json:"name" validate:"required"`
	Namespace      string `json:"namespace,omitempty"`
	ResponseTarget string `json:"responseTarget,omitempty"`
}

// EvaluationRef references another evaluation for batch aggregation.
type EvaluationRef struct {
	Name      string `json:"name" validate:"required"`
	Namespace string `json:"namespace,omitempty"`
}

// EventRule is a single weighted rule over the Kubernetes event stream.
type EventRule struct {
	Name        string  `json:"name" validate:"required"`
	Expression  string  `json:"expression" validate:"required"`
	Weight      float64 `json:"weight,omitempty"`
	Description string  `json:"description,omitempty"`
}

// EvaluationResponse is the normalized scoring verdict. Score is a decimal
// string in [0,1], or null when the request failed before judging so callers
// can distinguish "judged and failed" from "not judged".
type EvaluationResponse struct {
	Score      *string           `json:"score"`
	Passed     bool              `json:"passed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	TokenUsage TokenUsage        `json:"tokenUsage"`
	Error      string            `json:"error,omitempty"`
}

// FormatScore renders a score as the canonical decimal string with two
// fractional digits.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// FormatAggregateScore renders rule and sub-aggregate scores with three
// fractional digits.
func FormatAggregateScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 3, 64)
}

// WithScore sets the score, applying the passed predicate against minScore.
func (r *EvaluationResponse) WithScore(score float64, minScore float64) *EvaluationResponse {
	s := FormatScore(score)
	r.Score = &s
	r.Passed = score >= minScore
	return r
}

// TokenUsage is accumulated across every model call an evaluation makes.
type TokenUsage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// GoldenExample is an (input, expectedOutput) pair with optional tags used as
// ground truth by the baseline provider.
type GoldenExample struct {
	Input            string            `json:"input" validate:"required"`
	ExpectedOutput   string            `json:"expectedOutput" validate:"required"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ExpectedMinScore *float64          `json:"expectedMinScore,omitempty"`
	Difficulty       string            `json:"difficulty,omitempty"`
	Category         string            `json:"category,omitempty"`
}

// Parameters is the free-form string-keyed parameters mapping. Values are
// strings, lists, or mappings; typed accessors normalize them.
type Parameters map[string]any

// GetString returns the string form of the value for key, or fallback when
// the key is absent or empty.
func (p Parameters) GetString(key string, fallback string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return fallback
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetFloat parses the value for key as a float, or returns fallback.
func (p Parameters) GetFloat(key string, fallback float64) float64 {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// GetInt parses the value for key as an integer, or returns fallback.
func (p Parameters) GetInt(key string, fallback int) int {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// GetStringList returns the value for key as a list of strings. Accepts a
// JSON list or a comma-separated string.
func (p Parameters) GetStringList(key string) []string {
	value, ok := p[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return nil
	}
}

// GetGoldenExamples decodes parameters["golden-examples"], which arrives as a
// JSON-encoded array (CRD annotations are strings) or as an already-decoded
// list.
func (p Parameters) GetGoldenExamples(key string) ([]GoldenExample, error) {
	value, ok := p[key]
	if !ok || value == nil {
		return nil, nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	var examples []GoldenExample
	if err := json.Unmarshal(raw, &examples); err != nil {
		return nil, err
	}
	return examples, nil
}

// WithPrefix returns the parameters whose keys start with prefix, with the
// prefix stripped. Used for provider credential namespaces (azure.*, openai.*).
func (p Parameters) WithPrefix(prefix string) Parameters {
	out := Parameters{}
	for key, value := range p {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = value
		}
	}
	return out
}

// HasPrefix reports whether any parameter key starts with prefix.
func (p Parameters) HasPrefix(prefix string) bool {
	for key := range p {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
