package messages

import (
	"fmt"
	"strings"
)

// MessageCode couples a stable service message code with the HTTP status it
// maps to and a parameterized message template. Templates use {Name} style
// placeholders which are interpolated by GetErrorMessage.
type MessageCode struct {
	code       string
	statusCode int
	template   string
}

func newMessageCode(code string, statusCode int, template string) *MessageCode {
	return &MessageCode{
		code:       code,
		statusCode: statusCode,
		template:   template,
	}
}

func (m *MessageCode) GetCode() string {
	return m.code
}

func (m *MessageCode) GetStatusCode() int {
	return m.statusCode
}

// GetErrorMessage interpolates the template of the given message code with the
// provided key/value pairs. Parameters are passed as alternating keys and
// values; a trailing key without a value is interpolated as the empty string.
func GetErrorMessage(m *MessageCode, params ...any) string {
	message := m.template
	for i := 0; i < len(params); i += 2 {
		key := fmt.Sprintf("%v", params[i])
		value := ""
		if i+1 < len(params) {
			value = fmt.Sprintf("%v", params[i+1])
		}
		message = strings.ReplaceAll(message, "{"+key+"}", value)
	}
	return message
}

// Request decoding and validation (422 / 400).
var (
	InvalidJSONRequest      = newMessageCode("ARK-EVAL-1001", 400, "Request body is not valid JSON: {Error}")
	RequestValidationFailed = newMessageCode("ARK-EVAL-1002", 422, "Request validation failed: {Error}")
	MissingPathParameter    = newMessageCode("ARK-EVAL-1003", 400, "Missing path parameter: {ParameterName}")
	QueryParameterRequired  = newMessageCode("ARK-EVAL-1004", 400, "Query parameter is required: {ParameterName}")
	QueryParameterInvalid   = newMessageCode("ARK-EVAL-1005", 400, "Query parameter {ParameterName} must be of type {Type}, got: {Value}")
	NoValidMetrics          = newMessageCode("ARK-EVAL-1006", 422, "No valid metrics to evaluate: {Errors}")
)

// Configuration errors (400).
var (
	MissingParameter      = newMessageCode("ARK-EVAL-2001", 400, "Missing required parameter: {ParameterName}")
	InvalidParameter      = newMessageCode("ARK-EVAL-2002", 400, "Parameter {ParameterName} is invalid: {Error}")
	UnknownEvaluationType = newMessageCode("ARK-EVAL-2003", 400, "Unknown evaluation type: {Type}. Registered types: {Registered}")
	UnknownProvider       = newMessageCode("ARK-EVAL-2004", 400, "Unknown provider: {Provider}. Registered providers: {Registered}")
)

// Kubernetes resource resolution (404 / 403).
var (
	ResourceNotFound = newMessageCode("ARK-EVAL-3001", 404, "{Kind} {Namespace}/{Name} not found")
	ResourceAccess   = newMessageCode("ARK-EVAL-3002", 403, "Access denied reading {Kind} {Namespace}/{Name}")
	NoKubernetes     = newMessageCode("ARK-EVAL-3003", 500, "Kubernetes client is not available: {Error}")
)

// Evaluation execution (500 / 504).
var (
	UpstreamRequestFailed = newMessageCode("ARK-EVAL-4001", 500, "Upstream model request failed with status {Status}: {Body}")
	EvaluationFailed      = newMessageCode("ARK-EVAL-4002", 500, "Evaluation failed: {Error}")
	EvaluationTimeout     = newMessageCode("ARK-EVAL-4003", 504, "Evaluation exceeded the time budget of {Budget}")
	InternalServerError   = newMessageCode("ARK-EVAL-5001", 500, "Internal server error: {Error}")
)
