package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/handlers"
	"github.com/mckinsey/ark-evaluator/internal/http_wrappers"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/providers"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/validation"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCtx() *executioncontext.ExecutionContext {
	return executioncontext.NewExecutionContext(context.Background(), "req-1", discardLogger(), time.Minute)
}

// fakeRequest satisfies the request wrapper without net/http plumbing.
type fakeRequest struct {
	body       string
	pathValues map[string]string
}

func (r *fakeRequest) BodyAsBytes() ([]byte, error) { return []byte(r.body), nil }
func (r *fakeRequest) Query(name string) []string   { return nil }
func (r *fakeRequest) PathValue(name string) string { return r.pathValues[name] }
func (r *fakeRequest) URI() string                  { return "/test" }
func (r *fakeRequest) Method() string               { return http.MethodPost }
func (r *fakeRequest) Header(name string) string    { return "" }

// judgeServer answers every completion with the given reply.
func judgeServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	content, _ := json.Marshal(reply)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + string(content) + `}}],` +
			`"usage":{"prompt_tokens":8,"completion_tokens":4,"total_tokens":12}}`))
	}))
}

func newHandler(t *testing.T, server *httptest.Server) *handlers.Handler {
	t.Helper()
	validate, err := validation.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	logger := discardLogger()
	httpClient := http.DefaultClient
	baseURL := "http://model.invalid"
	if server != nil {
		httpClient = server.Client()
		baseURL = server.URL
	}
	client := llm.NewClientWithHTTP(httpClient, logger)
	serviceConfig := &config.Config{Service: &config.ServiceConfig{Version: "test"}}
	registry := providers.NewRegistry(providers.Deps{
		Resolver: resolver.New(nil, &config.DefaultModelConfig{Model: "judge-model", BaseURL: baseURL, APIKey: "k"}, logger),
		LLM:      client,
		Judge:    scoring.NewJudge(client, logger),
		Config:   serviceConfig,
		Logger:   logger,
	})
	return handlers.New(validate, registry, serviceConfig)
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleEvaluate(t *testing.T) {
	server := judgeServer(t, "SCORE: 0.9\nPASSED: true")
	defer server.Close()

	handler := newHandler(t, server)
	recorder := httptest.NewRecorder()
	handler.HandleEvaluate(testCtx(),
		&fakeRequest{body: `{"type": "direct", "config": {"input": "q", "output": "a"}}`},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body)
	}
	var response api.EvaluationResponse
	decode(t, recorder, &response)
	if response.Score == nil || *response.Score != "0.90" || !response.Passed {
		t.Errorf("response = %+v", response)
	}
}

func TestHandleEvaluateMalformedJSON(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleEvaluate(testCtx(),
		&fakeRequest{body: `{"type": `},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
	var body api.Error
	decode(t, recorder, &body)
	if body.RequestID != "req-1" || body.MessageCode == "" {
		t.Errorf("error body = %+v", body)
	}
}

func TestHandleEvaluateValidationFailure(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	// a direct request must not carry the query variant
	handler.HandleEvaluate(testCtx(),
		&fakeRequest{body: `{"type": "direct", "config": {"input": "q", "output": "a", "queryRef": {"name": "x"}}}`},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", recorder.Code)
	}
}

func TestHandleEvaluateUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	handler := newHandler(t, server)
	recorder := httptest.NewRecorder()
	handler.HandleEvaluate(testCtx(),
		&fakeRequest{body: `{"type": "direct", "config": {"input": "q", "output": "a"}}`},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code < http.StatusInternalServerError {
		t.Fatalf("status = %d, want 5xx", recorder.Code)
	}
	// attempted evaluations keep the response shape with a null score
	var response api.EvaluationResponse
	decode(t, recorder, &response)
	if response.Score != nil || response.Passed {
		t.Errorf("response = %+v, want null score", response)
	}
	if response.Error == "" || response.Metadata["error_type"] == "" {
		t.Errorf("response should carry the failure: %+v", response)
	}
}

func TestHandleListProviders(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleListProviders(testCtx(), &fakeRequest{}, http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var list api.ProviderInfoList
	decode(t, recorder, &list)
	if len(list.Providers) != 3 {
		t.Errorf("providers = %+v", list.Providers)
	}
}

func TestHandleProviderMetrics(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleProviderMetrics(testCtx(),
		&fakeRequest{pathValues: map[string]string{"provider": "ragas"}},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var list api.MetricInfoList
	decode(t, recorder, &list)
	if list.Provider != "ragas" || len(list.Metrics) != 6 {
		t.Errorf("list = provider %q with %d metrics", list.Provider, len(list.Metrics))
	}
}

func TestHandleProviderMetricsUnknownProvider(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleProviderMetrics(testCtx(),
		&fakeRequest{pathValues: map[string]string{"provider": "ark"}},
		http_wrappers.NewResponseWrapper(recorder))

	// the native provider exposes no engine metrics catalogue
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", recorder.Code)
	}
}

func TestHandleProviderMetric(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleProviderMetric(testCtx(),
		&fakeRequest{pathValues: map[string]string{"provider": "ragas", "metric": "faithfulness"}},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body)
	}
	var metric api.MetricInfo
	decode(t, recorder, &metric)
	if metric.Name != "faithfulness" {
		t.Errorf("metric = %+v", metric)
	}
}

func TestHandleProviderMetricUnknown(t *testing.T) {
	handler := newHandler(t, nil)
	recorder := httptest.NewRecorder()
	handler.HandleProviderMetric(testCtx(),
		&fakeRequest{pathValues: map[string]string{"provider": "ragas", "metric": "vibes"}},
		http_wrappers.NewResponseWrapper(recorder))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", recorder.Code)
	}
	var body api.Error
	decode(t, recorder, &body)
	if !strings.Contains(body.Message, "vibes") {
		t.Errorf("error = %+v", body)
	}
}

func TestHandleHealthAndReady(t *testing.T) {
	handler := newHandler(t, nil)

	recorder := httptest.NewRecorder()
	handler.HandleHealth(testCtx(), &fakeRequest{}, http_wrappers.NewResponseWrapper(recorder))
	var health map[string]string
	decode(t, recorder, &health)
	if health["status"] != "healthy" || health["version"] != "test" {
		t.Errorf("health = %v", health)
	}

	recorder = httptest.NewRecorder()
	handler.HandleReady(testCtx(), &fakeRequest{}, http_wrappers.NewResponseWrapper(recorder))
	var ready map[string]string
	decode(t, recorder, &ready)
	if ready["status"] != "ready" {
		t.Errorf("ready = %v", ready)
	}
}
