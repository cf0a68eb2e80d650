package constants

// Path parameters.
const (
	PATH_PARAMETER_PROVIDER = "provider"
	PATH_PARAMETER_METRIC   = "metric"
)

// Recognized request parameter keys. The parameters mapping on an evaluation
// request is free-form; these are the keys the service interprets.
const (
	PARAM_PROVIDER        = "provider"
	PARAM_MODEL_NAME      = "model.name"
	PARAM_MODEL_NAMESPACE = "model.namespace"
	PARAM_MIN_SCORE       = "min-score"
	PARAM_THRESHOLD       = "threshold"
	PARAM_MAX_TOKENS      = "max_tokens"
	PARAM_TEMPERATURE     = "temperature"
	PARAM_CRITERIA        = "evaluation_criteria"
	PARAM_CONTEXT         = "context"
	PARAM_CONTEXT_SOURCE  = "context_source"
	PARAM_GOLDEN_EXAMPLES = "golden-examples"
	PARAM_QUERY_NAME      = "query.name"
	PARAM_QUERY_NAMESPACE = "query.namespace"
	PARAM_SESSION_ID      = "sessionId"
	PARAM_METRICS         = "metrics"
)

// Provider keys.
const (
	PROVIDER_ARK      = "ark"
	PROVIDER_DEFAULT  = "default"
	PROVIDER_RAGAS    = "ragas"
	PROVIDER_LANGFUSE = "langfuse"
)

// Defaults.
const (
	DEFAULT_MIN_SCORE   = 0.7
	DEFAULT_TEMPERATURE = 0.1
	DEFAULT_MAX_TOKENS  = 1000
)
