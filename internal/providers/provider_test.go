package providers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/providers"
	"github.com/mckinsey/ark-evaluator/internal/resolver"
	"github.com/mckinsey/ark-evaluator/internal/scoring"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCtx() *executioncontext.ExecutionContext {
	return executioncontext.NewExecutionContext(context.Background(), "test-request", discardLogger(), time.Minute)
}

// fakeCluster serves fixed resources through the k8s.Interface surface.
type fakeCluster struct {
	queries     map[string]*arkv1alpha1.Query
	evaluations map[string]*arkv1alpha1.Evaluation
	events      []corev1.Event
}

func clusterKey(namespace, name string) string {
	return namespace + "/" + name
}

func notFound(kind, namespace, name string) error {
	return serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", kind, "Namespace", namespace, "Name", name)
}

func (f *fakeCluster) GetSecretValue(ctx context.Context, namespace, name, key string) (string, error) {
	return "", notFound("Secret", namespace, name)
}

func (f *fakeCluster) GetConfigMapValue(ctx context.Context, namespace, name, key string) (string, error) {
	return "", notFound("ConfigMap", namespace, name)
}

func (f *fakeCluster) ListEvents(ctx context.Context, namespace string, limit int64) ([]corev1.Event, error) {
	return f.events, nil
}

func (f *fakeCluster) GetModel(ctx context.Context, namespace, name string) (*arkv1alpha1.Model, error) {
	return nil, notFound("Model", namespace, name)
}

func (f *fakeCluster) GetAgent(ctx context.Context, namespace, name string) (*arkv1alpha1.Agent, error) {
	return nil, notFound("Agent", namespace, name)
}

func (f *fakeCluster) GetQuery(ctx context.Context, namespace, name string) (*arkv1alpha1.Query, error) {
	if query, ok := f.queries[clusterKey(namespace, name)]; ok {
		return query, nil
	}
	return nil, notFound("Query", namespace, name)
}

func (f *fakeCluster) GetEvaluation(ctx context.Context, namespace, name string) (*arkv1alpha1.Evaluation, error) {
	if evaluation, ok := f.evaluations[clusterKey(namespace, name)]; ok {
		return evaluation, nil
	}
	return nil, notFound("Evaluation", namespace, name)
}

// chatLog collects the prompts a chat server received; baseline fans out
// across goroutines so access is locked.
type chatLog struct {
	mu      sync.Mutex
	prompts []string
}

func (l *chatLog) add(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
}

func (l *chatLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}

// chatServer answers chat completions, routing each prompt through reply.
// Every completion reports 12 total tokens.
func chatServer(t *testing.T, reply func(prompt string) string) (*httptest.Server, *chatLog) {
	t.Helper()
	log := &chatLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil || len(request.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := request.Messages[len(request.Messages)-1].Content
		log.add(prompt)
		content, _ := json.Marshal(reply(prompt))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + string(content) + `}}],` +
			`"usage":{"prompt_tokens":8,"completion_tokens":4,"total_tokens":12}}`))
	}))
	return server, log
}

func fixedReply(reply string) func(string) string {
	return func(string) string { return reply }
}

// newDeps wires providers against the fake cluster and the chat server, with
// the process default model pointing at the server.
func newDeps(cluster *fakeCluster, server *httptest.Server) providers.Deps {
	logger := discardLogger()
	httpClient := http.DefaultClient
	baseURL := "http://model.invalid"
	if server != nil {
		httpClient = server.Client()
		baseURL = server.URL
	}
	client := llm.NewClientWithHTTP(httpClient, logger)
	deps := providers.Deps{
		LLM:    client,
		Judge:  scoring.NewJudge(client, logger),
		Config: &config.Config{},
		Logger: logger,
	}
	defaultModel := &config.DefaultModelConfig{Model: "judge-model", BaseURL: baseURL, APIKey: "test-key"}
	if cluster != nil {
		// a typed nil must not reach the interface-valued fields
		deps.K8s = cluster
		deps.Resolver = resolver.New(cluster, defaultModel, logger)
	} else {
		deps.Resolver = resolver.New(nil, defaultModel, logger)
	}
	return deps
}

func evalRequest(evaluationType api.EvaluationType, evalConfig api.EvaluationConfig, params api.Parameters) *api.EvaluationRequest {
	if params == nil {
		params = api.Parameters{}
	}
	return &api.EvaluationRequest{Type: evaluationType, Config: evalConfig, Parameters: params}
}

func TestDispatchUnknownProvider(t *testing.T) {
	registry := providers.NewRegistry(newDeps(nil, nil))
	request := evalRequest(api.EvaluationTypeDirect,
		api.EvaluationConfig{Input: "q", Output: "a"},
		api.Parameters{"provider": "deepeval"})

	_, err := registry.Dispatch(testCtx(), request)
	if err == nil {
		t.Fatal("unknown provider should error")
	}
	if !strings.Contains(err.Error(), "deepeval") {
		t.Errorf("error should name the provider: %v", err)
	}
	if !strings.Contains(err.Error(), "ark, langfuse, ragas") {
		t.Errorf("error should list registered providers: %v", err)
	}
}

func TestDispatchUnknownEvaluationType(t *testing.T) {
	registry := providers.NewRegistry(newDeps(nil, nil))
	request := evalRequest(api.EvaluationType("weird"), api.EvaluationConfig{}, nil)

	_, err := registry.Dispatch(testCtx(), request)
	if err == nil {
		t.Fatal("unknown evaluation type should error")
	}
	if !strings.Contains(err.Error(), "weird") {
		t.Errorf("error should name the type: %v", err)
	}
	if !strings.Contains(err.Error(), "baseline, batch, direct, event, query") {
		t.Errorf("error should list registered types: %v", err)
	}
}

func TestProvidersListing(t *testing.T) {
	registry := providers.NewRegistry(newDeps(nil, nil))
	list := registry.Providers()
	if len(list.Providers) != 3 {
		t.Fatalf("got %d providers, want ark, langfuse, ragas", len(list.Providers))
	}
	if list.Providers[0].Name != "ark" || list.Providers[1].Name != "langfuse" || list.Providers[2].Name != "ragas" {
		t.Errorf("providers = %v, want sorted ark, langfuse, ragas", list.Providers)
	}
	ark := list.Providers[0]
	if strings.Join(ark.EvaluationTypes, ",") != "baseline,batch,direct,event,query" {
		t.Errorf("ark types = %v", ark.EvaluationTypes)
	}
	langfuse := list.Providers[1]
	if strings.Join(langfuse.EvaluationTypes, ",") != "direct,query" {
		t.Errorf("langfuse types = %v", langfuse.EvaluationTypes)
	}
}

func TestHasOSSProvider(t *testing.T) {
	registry := providers.NewRegistry(newDeps(nil, nil))
	if !registry.HasOSSProvider("RAGAS") {
		t.Error("provider keys should match case-insensitively")
	}
	if registry.HasOSSProvider("ark") {
		t.Error("ark is the native provider, not an OSS one")
	}
}
