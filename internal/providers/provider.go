// Package providers holds the evaluation strategies and the dispatcher that
// routes a request to one of them. Native providers (direct, query, batch,
// event, baseline) implement the ark evaluation types; OSS providers (ragas,
// langfuse) front external scoring engines. Registration is static at
// startup; providers themselves are stateless.
package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/k8s"
	"github.com/mckinsey/ark-evaluator/internal/langfuse"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/metrics"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"

	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// Provider is one evaluation strategy.
type Provider interface {
	Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error)
	RequiredParameters() []string
	EvaluationTypes() []api.EvaluationType
}

// Deps are the shared collaborators injected into every provider.
type Deps struct {
	Resolver *resolver.Resolver
	LLM      *llm.Client
	Judge    *scoring.Judge
	K8s      k8s.Interface
	Sink     langfuse.Sink
	Config   *config.Config
	Logger   *slog.Logger
}

// Registry maps evaluation types to native providers and provider keys to
// OSS providers.
type Registry struct {
	native map[api.EvaluationType]Provider
	oss    map[string]Provider
	logger *slog.Logger
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		native: map[api.EvaluationType]Provider{
			api.EvaluationTypeDirect:   &DirectProvider{deps: deps},
			api.EvaluationTypeQuery:    &QueryProvider{deps: deps},
			api.EvaluationTypeBatch:    &BatchProvider{deps: deps},
			api.EvaluationTypeEvent:    &EventProvider{deps: deps},
			api.EvaluationTypeBaseline: &BaselineProvider{deps: deps},
		},
		oss: map[string]Provider{
			constants.PROVIDER_RAGAS:    &RagasProvider{deps: deps},
			constants.PROVIDER_LANGFUSE: &LangfuseProvider{deps: deps},
		},
		logger: deps.Logger,
	}
}

// Dispatch routes the request by parameters["provider"], falling back to the
// native provider for the request type. Outcomes are counted in the
// evaluation metrics.
func (r *Registry) Dispatch(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	providerKey := strings.ToLower(request.Parameters.GetString(constants.PARAM_PROVIDER, constants.PROVIDER_ARK))

	provider, err := r.lookup(providerKey, request.Type)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	response, err := provider.Evaluate(ctx, request)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if !response.Passed {
		outcome = "failed"
	}
	metrics.EvaluationsTotal.WithLabelValues(string(request.Type), providerKey, outcome).Inc()
	metrics.EvaluationDuration.WithLabelValues(string(request.Type), providerKey).Observe(time.Since(started).Seconds())
	return response, err
}

func (r *Registry) lookup(providerKey string, evaluationType api.EvaluationType) (Provider, error) {
	switch providerKey {
	case constants.PROVIDER_ARK, constants.PROVIDER_DEFAULT, "":
		provider, ok := r.native[evaluationType]
		if !ok {
			return nil, serviceerrors.NewServiceError(messages.UnknownEvaluationType,
				"Type", string(evaluationType), "Registered", r.evaluationTypeOptions())
		}
		return provider, nil
	default:
		provider, ok := r.oss[providerKey]
		if !ok {
			return nil, serviceerrors.NewServiceError(messages.UnknownProvider,
				"Provider", providerKey, "Registered", strings.Join(r.providerOptions(), ", "))
		}
		return provider, nil
	}
}

// Providers renders the full registration for GET /providers.
func (r *Registry) Providers() api.ProviderInfoList {
	list := api.ProviderInfoList{}
	for _, key := range r.providerOptions() {
		var provider Provider
		if key == constants.PROVIDER_ARK {
			provider = nil
		} else {
			provider = r.oss[key]
		}
		info := api.ProviderInfo{Name: key}
		if provider == nil {
			for evaluationType := range r.native {
				info.EvaluationTypes = append(info.EvaluationTypes, string(evaluationType))
			}
			sort.Strings(info.EvaluationTypes)
		} else {
			for _, evaluationType := range provider.EvaluationTypes() {
				info.EvaluationTypes = append(info.EvaluationTypes, string(evaluationType))
			}
		}
		list.Providers = append(list.Providers, info)
	}
	return list
}

// HasOSSProvider reports whether the key names a registered OSS provider.
func (r *Registry) HasOSSProvider(key string) bool {
	_, ok := r.oss[strings.ToLower(key)]
	return ok
}

func (r *Registry) providerOptions() []string {
	options := []string{constants.PROVIDER_ARK}
	for key := range r.oss {
		options = append(options, key)
	}
	sort.Strings(options)
	return options
}

func (r *Registry) evaluationTypeOptions() string {
	options := make([]string, 0, len(r.native))
	for evaluationType := range r.native {
		options = append(options, string(evaluationType))
	}
	sort.Strings(options)
	return strings.Join(options, ", ")
}

// minScore is the effective pass threshold: threshold overrides min-score,
// both default to 0.7. Values outside [0, 1] are rejected.
func minScore(params api.Parameters) (float64, error) {
	name := constants.PARAM_MIN_SCORE
	value := params.GetFloat(constants.PARAM_MIN_SCORE, constants.DEFAULT_MIN_SCORE)
	if _, ok := params[constants.PARAM_THRESHOLD]; ok {
		name = constants.PARAM_THRESHOLD
		value = params.GetFloat(constants.PARAM_THRESHOLD, value)
	}
	if value < 0 || value > 1 {
		return 0, serviceerrors.NewServiceError(messages.InvalidParameter,
			"ParameterName", name, "Error", fmt.Sprintf("%g is outside [0, 1]", value))
	}
	return value, nil
}

func llmParams(params api.Parameters) llm.Params {
	return llm.Params{
		Temperature: params.GetFloat(constants.PARAM_TEMPERATURE, constants.DEFAULT_TEMPERATURE),
		MaxTokens:   params.GetInt(constants.PARAM_MAX_TOKENS, constants.DEFAULT_MAX_TOKENS),
	}
}

// resolveRequestModel resolves the judging model from the model.name and
// model.namespace parameters, with the query context as second rung.
func (d Deps) resolveRequestModel(ctx *executioncontext.ExecutionContext, params api.Parameters, queryContext *arkv1alpha1.Query) (*resolver.ModelConfig, error) {
	var modelRef *arkv1alpha1.ObjectRef
	if name := params.GetString(constants.PARAM_MODEL_NAME, ""); name != "" {
		modelRef = &arkv1alpha1.ObjectRef{
			Name:      name,
			Namespace: params.GetString(constants.PARAM_MODEL_NAMESPACE, ""),
		}
	}
	namespace := params.GetString(constants.PARAM_MODEL_NAMESPACE, "")
	if namespace == "" {
		namespace = params.GetString(constants.PARAM_QUERY_NAMESPACE, "default")
	}
	return d.Resolver.ResolveModel(ctx.Ctx, modelRef, queryContext, namespace)
}

// baseMetadata seeds the flat response metadata every provider emits.
func baseMetadata(providerKey string, evaluationType api.EvaluationType) map[string]string {
	return map[string]string{
		"provider":        providerKey,
		"evaluation_type": string(evaluationType),
	}
}

// applyVerdict fills a response from a parsed judge verdict.
func applyVerdict(response *api.EvaluationResponse, verdict scoring.Verdict) {
	score := api.FormatScore(verdict.Score)
	response.Score = &score
	response.Passed = verdict.Passed
	if verdict.Reasoning != "" {
		response.Metadata["reasoning"] = verdict.Reasoning
	}
	for criterion, value := range verdict.CriteriaScores {
		response.Metadata["criteria_"+criterion] = api.FormatScore(value)
	}
}

func formatCount(n int) string {
	return fmt.Sprintf("%d", n)
}

func parseScore(formatted string) float64 {
	score, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		return 0
	}
	return score
}
