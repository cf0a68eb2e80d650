// Package resolver fetches Model, Agent and Query custom resources and
// dereferences valueFrom secret/configmap references. Every resolution is
// request-scoped; the only shared state is the process-wide Kubernetes client.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"github.com/mckinsey/ark-evaluator/internal/k8s"
	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"
)

// DefaultModelName is the namespace-default model looked up when no explicit
// reference is given.
const DefaultModelName = "default"

// Model resolution sources, recorded in response metadata.
const (
	SourceExplicitRef      = "explicit-ref"
	SourceQueryRef         = "query-ref"
	SourceNamespaceDefault = "namespace-default"
	SourceProcessDefault   = "process-default"
)

// ModelConfig is the resolved, ready-to-call model configuration. Created per
// request, never cached.
type ModelConfig struct {
	Model      string
	BaseURL    string
	APIKey     string
	APIVersion string
	Type       string
	// Source records which rung of the resolution ladder produced the config.
	Source string
}

// AgentInstructions carries what scope-aware judging needs to know about an
// agent: its system prompt and heuristically derived scope hints.
type AgentInstructions struct {
	Name         string
	Description  string
	SystemPrompt string
	ScopeHints   []string
}

// Resolver resolves ark.mckinsey.com resources. A nil client puts the
// resolver in no-Kubernetes mode where only the process default model is
// available; this is a deliberate feature enabling local development without
// a cluster.
type Resolver struct {
	client       k8s.Interface
	defaultModel *config.DefaultModelConfig
	logger       *slog.Logger
}

func New(client k8s.Interface, defaultModel *config.DefaultModelConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// ResolveModel resolves a model config in order: explicit modelRef, the query
// context's modelRef, the namespace model named "default", and finally the
// process default.
func (r *Resolver) ResolveModel(ctx context.Context, modelRef *arkv1alpha1.ObjectRef, queryContext *arkv1alpha1.Query, namespace string) (*ModelConfig, error) {
	if r.client != nil {
		if modelRef != nil && modelRef.Name != "" {
			refNamespace := modelRef.Namespace
			if refNamespace == "" {
				refNamespace = namespace
			}
			modelConfig, err := r.resolveNamedModel(ctx, modelRef.Name, refNamespace)
			if err != nil {
				return nil, err
			}
			modelConfig.Source = SourceExplicitRef
			return modelConfig, nil
		}
		if queryContext != nil && queryContext.Spec.ModelRef != nil && queryContext.Spec.ModelRef.Name != "" {
			refNamespace := queryContext.Spec.ModelRef.Namespace
			if refNamespace == "" {
				refNamespace = queryContext.Namespace
			}
			modelConfig, err := r.resolveNamedModel(ctx, queryContext.Spec.ModelRef.Name, refNamespace)
			if err != nil {
				return nil, err
			}
			modelConfig.Source = SourceQueryRef
			return modelConfig, nil
		}
		if namespace != "" {
			modelConfig, err := r.resolveNamedModel(ctx, DefaultModelName, namespace)
			if err == nil {
				modelConfig.Source = SourceNamespaceDefault
				return modelConfig, nil
			}
			if _, isService := serviceerrors.AsServiceError(err); !isService {
				return nil, err
			}
			r.logger.Debug("No namespace default model, falling back to process default", "namespace", namespace)
		}
	}

	if r.defaultModel == nil {
		return nil, serviceerrors.NewServiceError(messages.MissingParameter, "ParameterName", "model.name")
	}
	return &ModelConfig{
		Model:      r.defaultModel.Model,
		BaseURL:    r.defaultModel.BaseURL,
		APIKey:     r.defaultModel.APIKey,
		APIVersion: r.defaultModel.APIVersion,
		Type:       arkv1alpha1.ModelTypeOpenAI,
		Source:     SourceProcessDefault,
	}, nil
}

func (r *Resolver) resolveNamedModel(ctx context.Context, name, namespace string) (*ModelConfig, error) {
	model, err := r.client.GetModel(ctx, namespace, name)
	if err != nil {
		return nil, err
	}

	modelName, err := r.ResolveValueSource(ctx, model.Spec.Model, namespace)
	if err != nil {
		return nil, err
	}

	modelConfig := &ModelConfig{
		Model: modelName,
		Type:  model.Spec.Type,
	}

	switch model.Spec.Type {
	case arkv1alpha1.ModelTypeAzure:
		if model.Spec.Config == nil || model.Spec.Config.Azure == nil {
			return nil, fmt.Errorf("model %s/%s is type azure but has no azure config", namespace, name)
		}
		azure := model.Spec.Config.Azure
		if modelConfig.APIKey, err = r.ResolveValueSource(ctx, azure.APIKey, namespace); err != nil {
			return nil, err
		}
		if modelConfig.BaseURL, err = r.ResolveValueSource(ctx, azure.BaseURL, namespace); err != nil {
			return nil, err
		}
		if modelConfig.APIVersion, err = r.ResolveValueSource(ctx, azure.APIVersion, namespace); err != nil {
			// api version is optional; keep the marker observable
			modelConfig.APIVersion = MarkerFor(err)
		}
	case arkv1alpha1.ModelTypeOpenAI, arkv1alpha1.ModelTypeBedrock:
		if model.Spec.Config == nil || model.Spec.Config.OpenAI == nil {
			return nil, fmt.Errorf("model %s/%s has no openai config", namespace, name)
		}
		openai := model.Spec.Config.OpenAI
		if modelConfig.APIKey, err = r.ResolveValueSource(ctx, openai.APIKey, namespace); err != nil {
			return nil, err
		}
		if modelConfig.BaseURL, err = r.ResolveValueSource(ctx, openai.BaseURL, namespace); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("model %s/%s has unsupported type %q", namespace, name, model.Spec.Type)
	}

	return modelConfig, nil
}

// ResolveAgent fetches an Agent and derives its instructions. A missing agent
// is not an error: scope-aware judging simply proceeds without instructions.
func (r *Resolver) ResolveAgent(ctx context.Context, name, namespace string) (*AgentInstructions, error) {
	if r.client == nil || name == "" {
		return nil, nil
	}
	agent, err := r.client.GetAgent(ctx, namespace, name)
	if err != nil {
		if serviceError, ok := serviceerrors.AsServiceError(err); ok && serviceError.Code == messages.ResourceNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &AgentInstructions{
		Name:         agent.Name,
		Description:  agent.Spec.Description,
		SystemPrompt: agent.Spec.Prompt,
		ScopeHints:   deriveScopeHints(agent.Spec.Prompt),
	}, nil
}

// ResolveQuery fetches a Query custom resource.
func (r *Resolver) ResolveQuery(ctx context.Context, name, namespace string) (*arkv1alpha1.Query, error) {
	if r.client == nil {
		return nil, serviceerrors.NewServiceError(messages.NoKubernetes, "Error", "query resolution requires cluster access")
	}
	return r.client.GetQuery(ctx, namespace, name)
}

// deriveScopeHints inspects the prompt text for judgement-relevant behaviors.
func deriveScopeHints(prompt string) []string {
	var hints []string
	lowered := strings.ToLower(prompt)
	if strings.Contains(lowered, "refuse") || strings.Contains(lowered, "decline") || strings.Contains(lowered, "out of scope") {
		hints = append(hints, "should-refuse-non-scope")
	}
	if strings.Contains(lowered, "java 8") || strings.Contains(lowered, "java8") {
		hints = append(hints, "java8-specific")
	}
	if strings.Contains(lowered, "concise") || strings.Contains(lowered, "brief") {
		hints = append(hints, "prefers-concise-answers")
	}
	if strings.Contains(lowered, "cite") || strings.Contains(lowered, "source") {
		hints = append(hints, "should-cite-sources")
	}
	return hints
}
