package api

// FieldInfo describes one input field a metric consumes.
type FieldInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// MetricInfo is the wire form of a metric descriptor returned by
// GET /providers/{provider}/metrics.
type MetricInfo struct {
	Name           string            `json:"name"`
	EngineName     string            `json:"engineName"`
	Description    string            `json:"description,omitempty"`
	RequiredFields []FieldInfo       `json:"requiredFields"`
	OptionalFields []FieldInfo       `json:"optionalFields,omitempty"`
	FieldMapping   map[string]string `json:"fieldMapping,omitempty"`
}

// MetricInfoList is the response for listing a provider's metrics.
type MetricInfoList struct {
	Provider string       `json:"provider"`
	Metrics  []MetricInfo `json:"metrics"`
}

// ProviderInfo describes one registered evaluation provider.
type ProviderInfo struct {
	Name            string   `json:"name"`
	EvaluationTypes []string `json:"evaluationTypes"`
}

// ProviderInfoList is the response for GET /providers.
type ProviderInfoList struct {
	Providers []ProviderInfo `json:"providers"`
}
