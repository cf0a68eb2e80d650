// Package v1alpha1 contains the subset of the ark.mckinsey.com custom
// resource types the evaluator reads. The controllers that own these CRDs
// live elsewhere; only the fields consumed during evaluation are declared.
package v1alpha1

import (
	"encoding/json"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	Group   = "ark.mckinsey.com"
	Version = "v1alpha1"
)

var (
	ModelGVR      = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "models"}
	AgentGVR      = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "agents"}
	QueryGVR      = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "queries"}
	EvaluationGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "evaluations"}
)

// ValueSource is either an inline value or a reference into a Secret or
// ConfigMap. When both are present the inline value wins.
type ValueSource struct {
	Value     string    `json:"value,omitempty"`
	ValueFrom *ValueRef `json:"valueFrom,omitempty"`
}

type ValueRef struct {
	SecretKeyRef    *KeySelector `json:"secretKeyRef,omitempty"`
	ConfigMapKeyRef *KeySelector `json:"configMapKeyRef,omitempty"`
}

type KeySelector struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Model model types.
const (
	ModelTypeOpenAI  = "openai"
	ModelTypeAzure   = "azure"
	ModelTypeBedrock = "bedrock"
)

type Model struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              ModelSpec `json:"spec"`
}

type ModelSpec struct {
	Type   string       `json:"type"`
	Model  ValueSource  `json:"model"`
	Config *ModelConfig `json:"config,omitempty"`
}

type ModelConfig struct {
	OpenAI *OpenAIConfig `json:"openai,omitempty"`
	Azure  *AzureConfig  `json:"azure,omitempty"`
}

type OpenAIConfig struct {
	APIKey  ValueSource `json:"apiKey"`
	BaseURL ValueSource `json:"baseUrl"`
}

type AzureConfig struct {
	APIKey     ValueSource `json:"apiKey"`
	BaseURL    ValueSource `json:"baseUrl"`
	APIVersion ValueSource `json:"apiVersion,omitempty"`
}

type Agent struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              AgentSpec `json:"spec"`
}

type AgentSpec struct {
	Description string    `json:"description,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	ModelRef    *ObjectRef `json:"modelRef,omitempty"`
}

type ObjectRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

type Query struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              QuerySpec    `json:"spec"`
	Status            *QueryStatus `json:"status,omitempty"`
}

type QuerySpec struct {
	Input    string        `json:"input,omitempty"`
	Targets  []QueryTarget `json:"targets,omitempty"`
	ModelRef *ObjectRef    `json:"modelRef,omitempty"`
}

type QueryTarget struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type QueryStatus struct {
	Phase      string          `json:"phase,omitempty"`
	Responses  []QueryResponse `json:"responses,omitempty"`
	Duration   *FlexDuration   `json:"duration,omitempty"`
	TokenUsage *QueryTokens    `json:"tokenUsage,omitempty"`
}

type QueryResponse struct {
	Target  QueryTarget `json:"target"`
	Content string      `json:"content"`
}

type QueryTokens struct {
	PromptTokens     int64 `json:"promptTokens,omitempty"`
	CompletionTokens int64 `json:"completionTokens,omitempty"`
	TotalTokens      int64 `json:"totalTokens,omitempty"`
}

// Evaluation is a recorded evaluation run. The batch provider reads the
// status the controller wrote for each referenced evaluation.
type Evaluation struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              EvaluationSpec    `json:"spec,omitempty"`
	Status            *EvaluationStatus `json:"status,omitempty"`
}

type EvaluationSpec struct {
	Type string `json:"type,omitempty"`
}

type EvaluationStatus struct {
	Phase      string       `json:"phase,omitempty"`
	Score      string       `json:"score,omitempty"`
	Passed     bool         `json:"passed,omitempty"`
	TokenUsage *QueryTokens `json:"tokenUsage,omitempty"`
}

// FlexDuration accepts the two shapes the duration field has been observed
// in: a Go-style duration string ("1.5s") and an object with seconds and
// microseconds components.
type FlexDuration struct {
	Seconds float64
}

func (d *FlexDuration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, err)
		}
		d.Seconds = parsed.Seconds()
		return nil
	}
	var asObject struct {
		Seconds      float64 `json:"seconds"`
		Microseconds float64 `json:"microseconds"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("invalid duration %s: %w", string(data), err)
	}
	d.Seconds = asObject.Seconds + asObject.Microseconds/1e6
	return nil
}

func (d FlexDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%gs", d.Seconds))
}
