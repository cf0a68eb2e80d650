// Package llm issues chat-completion requests to OpenAI-compatible and
// Azure-OpenAI-style endpoints. One HTTP client is shared process-wide for
// connection pooling; model configs are request-scoped.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/metrics"
	"github.com/mckinsey/ark-evaluator/internal/otel"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

const (
	// DefaultTemperature keeps judging consistent across runs.
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1000

	requestTimeout = 30 * time.Second
	connectTimeout = 10 * time.Second

	maxErrorBodySnippet = 512
)

var (
	sharedClientOnce sync.Once
	sharedClient     *http.Client
	sharedTimeout    = requestTimeout
)

// SetRequestTimeout overrides the shared client's per-request timeout. It
// must be called before the first SharedHTTPClient use; later calls have no
// effect.
func SetRequestTimeout(timeout time.Duration) {
	if timeout > 0 {
		sharedTimeout = timeout
	}
}

// SharedHTTPClient returns the process-wide pooled HTTP client, instrumented
// for trace propagation.
func SharedHTTPClient() *http.Client {
	sharedClientOnce.Do(func() {
		transport := &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		sharedClient = &http.Client{
			Transport: otel.NewRoundTripper(transport),
			Timeout:   sharedTimeout,
		}
	})
	return sharedClient
}

// CloseSharedHTTPClient drains idle connections on shutdown.
func CloseSharedHTTPClient() {
	if sharedClient != nil {
		sharedClient.CloseIdleConnections()
	}
}

// Params are the per-call generation knobs.
type Params struct {
	Temperature float64
	MaxTokens   int
}

func (p Params) withDefaults() Params {
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}

// Client issues chat completions against a resolved model config.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: SharedHTTPClient(),
		logger:     logger,
	}
}

// NewClientWithHTTP is used by tests to substitute an httptest client.
func NewClientWithHTTP(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// ChatComplete sends one user prompt and returns the completion content with
// token usage. Dialect is chosen from the base URL: anything containing
// "azure" speaks the Azure deployment path and api-key header, everything
// else is OpenAI-compatible.
func (c *Client) ChatComplete(ctx context.Context, prompt string, model *resolver.ModelConfig, params Params) (string, api.TokenUsage, error) {
	params = params.withDefaults()

	body := chatRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	var endpoint string
	headers := map[string]string{"Content-Type": "application/json"}
	if IsAzure(model.BaseURL) {
		endpoint = azureEndpoint(model)
		headers["api-key"] = model.APIKey
	} else {
		endpoint = strings.TrimSuffix(model.BaseURL, "/") + "/chat/completions"
		headers["Authorization"] = "Bearer " + model.APIKey
		body.Model = model.Model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", api.TokenUsage{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", api.TokenUsage{}, err
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", api.TokenUsage{}, serviceerrors.NewServiceError(messages.UpstreamRequestFailed, "Status", "0", "Body", err.Error())
	}
	defer func() { _ = response.Body.Close() }()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", api.TokenUsage{}, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet := string(responseBody)
		if len(snippet) > maxErrorBodySnippet {
			snippet = snippet[:maxErrorBodySnippet]
		}
		c.logger.Error("Model request failed", "status", response.StatusCode, "endpoint", endpoint)
		return "", api.TokenUsage{}, serviceerrors.NewServiceError(messages.UpstreamRequestFailed, "Status", fmt.Sprintf("%d", response.StatusCode), "Body", snippet)
	}

	var completion chatResponse
	if err := json.Unmarshal(responseBody, &completion); err != nil {
		return "", api.TokenUsage{}, fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", api.TokenUsage{}, fmt.Errorf("model response contained no choices")
	}

	usage := api.TokenUsage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}
	metrics.ModelTokensTotal.WithLabelValues(model.Model, "prompt").Add(float64(usage.PromptTokens))
	metrics.ModelTokensTotal.WithLabelValues(model.Model, "completion").Add(float64(usage.CompletionTokens))

	return completion.Choices[0].Message.Content, usage, nil
}

// IsAzure reports whether the base URL speaks the Azure OpenAI dialect.
func IsAzure(baseURL string) bool {
	return strings.Contains(strings.ToLower(baseURL), "azure")
}

func azureEndpoint(model *resolver.ModelConfig) string {
	base := strings.TrimSuffix(model.BaseURL, "/")
	apiVersion := model.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(model.Model), url.QueryEscape(apiVersion))
}
