package scoring_test

import (
	"testing"

	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

func TestDetectLLMProvider(t *testing.T) {
	cases := []struct {
		params api.Parameters
		want   scoring.LLMProvider
	}{
		{api.Parameters{"azure.endpoint": "e"}, scoring.ProviderAzureOpenAI},
		{api.Parameters{"langfuse.azure_endpoint": "e"}, scoring.ProviderAzureOpenAI},
		{api.Parameters{"openai.api_key": "k"}, scoring.ProviderOpenAI},
		{api.Parameters{"anthropic.api_key": "k"}, scoring.ProviderAnthropic},
		{api.Parameters{"google.api_key": "k"}, scoring.ProviderGoogle},
		{api.Parameters{"ollama.base_url": "u"}, scoring.ProviderOllama},
		{api.Parameters{"metrics": "relevance"}, scoring.ProviderOpenAI},
	}
	for _, tc := range cases {
		if got := scoring.DetectLLMProvider(tc.params); got != tc.want {
			t.Errorf("DetectLLMProvider(%v) = %v, want %v", tc.params, got, tc.want)
		}
	}
}

func TestBuildModelConfigAzure(t *testing.T) {
	config, err := scoring.BuildModelConfig(api.Parameters{
		"azure.endpoint":        "https://example.openai.azure.com/",
		"azure.api_key":         "key",
		"azure.deployment_name": "gpt-4o",
		"azure.api_version":     "2024-06-01",
	})
	if err != nil {
		t.Fatalf("BuildModelConfig: %v", err)
	}
	if config.BaseURL != "https://example.openai.azure.com" {
		t.Errorf("BaseURL = %q, want trailing slash stripped", config.BaseURL)
	}
	if config.Model != "gpt-4o" || config.Type != "azure" || config.APIVersion != "2024-06-01" {
		t.Errorf("config = %+v", config)
	}
}

func TestBuildModelConfigAzureMissingCredentials(t *testing.T) {
	if _, err := scoring.BuildModelConfig(api.Parameters{"azure.endpoint": "e"}); err == nil {
		t.Error("incomplete azure credentials should error")
	}
}

func TestBuildModelConfigOpenAIDefaults(t *testing.T) {
	config, err := scoring.BuildModelConfig(api.Parameters{"openai.api_key": "key"})
	if err != nil {
		t.Fatalf("BuildModelConfig: %v", err)
	}
	if config.Model != "gpt-4o-mini" || config.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("defaults = %+v", config)
	}
	if config.Source != "request-parameters" {
		t.Errorf("Source = %q", config.Source)
	}
}

func TestBuildModelConfigOpenAIMissingKey(t *testing.T) {
	// never falls back to process environment credentials
	if _, err := scoring.BuildModelConfig(api.Parameters{"metrics": "relevance"}); err == nil {
		t.Error("missing openai.api_key should error")
	}
}

func TestBuildModelConfigLangfuseSpelling(t *testing.T) {
	config, err := scoring.BuildModelConfig(api.Parameters{
		"langfuse.openai_api_key": "key",
		"langfuse.openai_model":   "gpt-4.1",
	})
	if err != nil {
		t.Fatalf("BuildModelConfig: %v", err)
	}
	if config.Model != "gpt-4.1" || config.Type != "openai" {
		t.Errorf("config = %+v", config)
	}
}
