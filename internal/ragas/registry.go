// Package ragas holds the closed metric registry, the field validator and
// the dataset shaping used by the RAGAS-style scoring path.
package ragas

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// FieldType is the declared type of a dataset field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldStringList FieldType = "list<string>"
	FieldInt        FieldType = "int"
	FieldFloat      FieldType = "float"
	FieldBool       FieldType = "bool"
)

// FieldRequirement declares one dataset field a metric consumes.
type FieldRequirement struct {
	Name        string
	Type        FieldType
	Description string
	Example     string
}

// Metric is one registry entry. EngineName is the identifier the scoring
// engine knows; FieldMapping translates the neutral dataset vocabulary to
// the engine's field names.
type Metric struct {
	Name           string
	EngineName     string
	Description    string
	RequiredFields []FieldRequirement
	OptionalFields []FieldRequirement
	FieldMapping   map[string]string
}

// Neutral dataset field names.
const (
	FieldInputText   = "input_text"
	FieldOutputText  = "output_text"
	FieldContext     = "context"
	FieldGroundTruth = "ground_truth"
)

var (
	inputField = FieldRequirement{
		Name: FieldInputText, Type: FieldString,
		Description: "the user query being evaluated",
		Example:     "What is the capital of France?",
	}
	outputField = FieldRequirement{
		Name: FieldOutputText, Type: FieldString,
		Description: "the model response being evaluated",
		Example:     "The capital of France is Paris.",
	}
	contextField = FieldRequirement{
		Name: FieldContext, Type: FieldStringList,
		Description: "retrieved context passages",
	}
	groundTruthField = FieldRequirement{
		Name: FieldGroundTruth, Type: FieldString,
		Description: "the reference answer",
	}
)

// standardMapping is the neutral-to-engine translation shared by the
// starter metrics.
var standardMapping = map[string]string{
	FieldInputText:   "user_input",
	FieldOutputText:  "response",
	FieldContext:     "retrieved_contexts",
	FieldGroundTruth: "reference",
}

var metricAliases = map[string]string{
	"helpfulness": "relevance",
	"clarity":     "similarity",
}

var registry = map[string]*Metric{
	"relevance": {
		Name:           "relevance",
		EngineName:     "answer_relevancy",
		Description:    "How relevant the response is to the query",
		RequiredFields: []FieldRequirement{inputField, outputField},
		OptionalFields: []FieldRequirement{contextField},
		FieldMapping:   standardMapping,
	},
	"correctness": {
		Name:           "correctness",
		EngineName:     "answer_correctness",
		Description:    "Factual and semantic correctness against the reference answer",
		RequiredFields: []FieldRequirement{inputField, outputField, groundTruthField},
		FieldMapping:   standardMapping,
	},
	"similarity": {
		Name:           "similarity",
		EngineName:     "answer_similarity",
		Description:    "Semantic similarity between the response and the reference answer",
		RequiredFields: []FieldRequirement{outputField, groundTruthField},
		FieldMapping:   standardMapping,
	},
	"faithfulness": {
		Name:           "faithfulness",
		EngineName:     "faithfulness",
		Description:    "Whether the response is grounded in the retrieved context",
		RequiredFields: []FieldRequirement{inputField, outputField, contextField},
		FieldMapping:   standardMapping,
	},
	"context_precision": {
		Name:           "context_precision",
		EngineName:     "context_precision",
		Description:    "How much of the retrieved context is relevant to the query",
		RequiredFields: []FieldRequirement{inputField, contextField, groundTruthField},
		OptionalFields: []FieldRequirement{outputField},
		FieldMapping:   standardMapping,
	},
	"context_recall": {
		Name:           "context_recall",
		EngineName:     "context_recall",
		Description:    "How much of the reference answer the retrieved context covers",
		RequiredFields: []FieldRequirement{inputField, contextField, groundTruthField},
		FieldMapping:   standardMapping,
	},
}

// Lookup resolves a metric by name or alias.
func Lookup(name string) (*Metric, bool) {
	canonical := strings.ToLower(strings.TrimSpace(name))
	if target, ok := metricAliases[canonical]; ok {
		canonical = target
	}
	metric, ok := registry[canonical]
	return metric, ok
}

// MetricNames lists the registered canonical names, sorted.
func MetricNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics are evaluated when the request names none.
func DefaultMetrics() []string {
	return []string{"relevance", "correctness"}
}

// Describe renders registry entries as wire-level metric info.
func Describe(names []string) (api.MetricInfoList, error) {
	infos := make([]api.MetricInfo, 0, len(names))
	for _, name := range names {
		metric, ok := Lookup(name)
		if !ok {
			return api.MetricInfoList{}, fmt.Errorf("unknown metric %q", name)
		}
		infos = append(infos, metricInfo(metric))
	}
	return api.MetricInfoList{Metrics: infos}, nil
}

// DescribeAll renders the whole registry.
func DescribeAll() api.MetricInfoList {
	infos := make([]api.MetricInfo, 0, len(registry))
	for _, name := range MetricNames() {
		infos = append(infos, metricInfo(registry[name]))
	}
	return api.MetricInfoList{Metrics: infos}
}

func metricInfo(metric *Metric) api.MetricInfo {
	return api.MetricInfo{
		Name:           metric.Name,
		EngineName:     metric.EngineName,
		Description:    metric.Description,
		RequiredFields: fieldInfos(metric.RequiredFields),
		OptionalFields: fieldInfos(metric.OptionalFields),
		FieldMapping:   metric.FieldMapping,
	}
}

func fieldInfos(fields []FieldRequirement) []api.FieldInfo {
	infos := make([]api.FieldInfo, 0, len(fields))
	for _, field := range fields {
		infos = append(infos, api.FieldInfo{
			Name:        field.Name,
			Type:        string(field.Type),
			Description: field.Description,
			Example:     field.Example,
		})
	}
	return infos
}
