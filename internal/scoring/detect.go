package scoring

import (
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// LLMProvider identifies the upstream LLM family for the RAGAS path.
type LLMProvider string

const (
	ProviderAzureOpenAI LLMProvider = "azure-openai"
	ProviderOpenAI      LLMProvider = "openai"
	ProviderAnthropic   LLMProvider = "anthropic"
	ProviderGoogle      LLMProvider = "google"
	ProviderOllama      LLMProvider = "ollama"
)

// DetectLLMProvider inspects parameter prefixes to pick the LLM family.
// langfuse.* parameters are accepted as an equivalent spelling, with
// langfuse.azure_* mapping to Azure.
func DetectLLMProvider(params api.Parameters) LLMProvider {
	switch {
	case params.HasPrefix("azure."):
		return ProviderAzureOpenAI
	case params.HasPrefix("langfuse.azure_"):
		return ProviderAzureOpenAI
	case params.HasPrefix("openai.") || params.HasPrefix("langfuse.openai_"):
		return ProviderOpenAI
	case params.HasPrefix("anthropic.") || params.HasPrefix("langfuse.anthropic_"):
		return ProviderAnthropic
	case params.HasPrefix("google.") || params.HasPrefix("langfuse.google_"):
		return ProviderGoogle
	case params.HasPrefix("ollama.") || params.HasPrefix("langfuse.ollama_"):
		return ProviderOllama
	}
	return ProviderOpenAI
}

// BuildModelConfig assembles an explicit-credential model config for the
// detected family. Credentials come only from the request parameters, never
// from process environment.
func BuildModelConfig(params api.Parameters) (*resolver.ModelConfig, error) {
	provider := DetectLLMProvider(params)
	switch provider {
	case ProviderAzureOpenAI:
		endpoint := firstParam(params, "azure.endpoint", "langfuse.azure_endpoint")
		apiKey := firstParam(params, "azure.api_key", "langfuse.azure_api_key")
		deployment := firstParam(params, "azure.deployment_name", "langfuse.azure_deployment_name")
		if endpoint == "" || apiKey == "" || deployment == "" {
			return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "azure.endpoint, azure.api_key, azure.deployment_name")
		}
		return &resolver.ModelConfig{
			Model:      deployment,
			BaseURL:    ensureAzureURL(endpoint),
			APIKey:     apiKey,
			APIVersion: firstParam(params, "azure.api_version", "langfuse.azure_api_version"),
			Type:       "azure",
			Source:     "request-parameters",
		}, nil
	case ProviderOpenAI:
		apiKey := firstParam(params, "openai.api_key", "langfuse.openai_api_key")
		if apiKey == "" {
			return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "openai.api_key")
		}
		baseURL := firstParam(params, "openai.base_url", "langfuse.openai_base_url")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := firstParam(params, "openai.model", "langfuse.openai_model")
		if model == "" {
			model = "gpt-4o-mini"
		}
		return &resolver.ModelConfig{
			Model:   model,
			BaseURL: baseURL,
			APIKey:  apiKey,
			Type:    "openai",
			Source:  "request-parameters",
		}, nil
	case ProviderAnthropic:
		apiKey := firstParam(params, "anthropic.api_key", "langfuse.anthropic_api_key")
		if apiKey == "" {
			return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "anthropic.api_key")
		}
		return &resolver.ModelConfig{
			Model:   firstParam(params, "anthropic.model", "langfuse.anthropic_model"),
			BaseURL: "https://api.anthropic.com/v1",
			APIKey:  apiKey,
			Type:    "anthropic",
			Source:  "request-parameters",
		}, nil
	case ProviderGoogle:
		apiKey := firstParam(params, "google.api_key", "langfuse.google_api_key")
		if apiKey == "" {
			return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "google.api_key")
		}
		return &resolver.ModelConfig{
			Model:   firstParam(params, "google.model", "langfuse.google_model"),
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKey:  apiKey,
			Type:    "google",
			Source:  "request-parameters",
		}, nil
	case ProviderOllama:
		baseURL := firstParam(params, "ollama.base_url", "langfuse.ollama_base_url")
		if baseURL == "" {
			return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "ollama.base_url")
		}
		return &resolver.ModelConfig{
			Model:   firstParam(params, "ollama.model", "langfuse.ollama_model"),
			BaseURL: baseURL,
			APIKey:  "ollama",
			Type:    "ollama",
			Source:  "request-parameters",
		}, nil
	}
	return nil, serviceerrors.NewServiceError(messages.InvalidParameter, "ParameterName", "provider", "Error", "unsupported llm family "+string(provider))
}

func firstParam(params api.Parameters, keys ...string) string {
	for _, key := range keys {
		if value := params.GetString(key, ""); value != "" {
			return value
		}
	}
	return ""
}

func ensureAzureURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/")
}
