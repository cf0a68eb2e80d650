package k8s

// Helper wrapper around the Kubernetes clientset and the dynamic client for
// the ark.mckinsey.com custom resources.
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNoKubernetes is returned when neither an in-cluster config nor a local
// kubeconfig is available. Callers treat this as the no-Kubernetes development
// mode rather than a failure.
var ErrNoKubernetes = errors.New("no kubernetes configuration available")

// Interface exposes the cluster reads the evaluator performs. Keeping this
// abstraction in one place allows all call sites to stay unchanged if we
// switch to a different underlying Kubernetes client implementation, and lets
// tests substitute the client-go fakes.
type Interface interface {
	GetSecretValue(ctx context.Context, namespace, name, key string) (string, error)
	GetConfigMapValue(ctx context.Context, namespace, name, key string) (string, error)
	ListEvents(ctx context.Context, namespace string, limit int64) ([]corev1.Event, error)
	GetModel(ctx context.Context, namespace, name string) (*arkv1alpha1.Model, error)
	GetAgent(ctx context.Context, namespace, name string) (*arkv1alpha1.Agent, error)
	GetQuery(ctx context.Context, namespace, name string) (*arkv1alpha1.Query, error)
	GetEvaluation(ctx context.Context, namespace, name string) (*arkv1alpha1.Evaluation, error)
}

type Helper struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
}

var _ Interface = (*Helper)(nil)

var (
	clientOnce sync.Once
	client     Interface
	clientErr  error
)

// GetClient initializes the process-wide Kubernetes client at most once.
// Preference order: in-cluster config, then the default kubeconfig. When
// neither is available it returns ErrNoKubernetes so callers can fall back to
// the process default model config for local development.
func GetClient(logger *slog.Logger) (Interface, error) {
	clientOnce.Do(func() {
		client, clientErr = newHelper(logger)
	})
	return client, clientErr
}

func newHelper(logger *slog.Logger) (Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		configOverrides := &clientcmd.ConfigOverrides{}
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules,
			configOverrides,
		).ClientConfig()
		if err != nil {
			logger.Info("No Kubernetes configuration found, resolution will use the process default model", "error", err.Error())
			return nil, ErrNoKubernetes
		}
		logger.Debug("Using kubeconfig Kubernetes client")
	} else {
		logger.Debug("Using in-cluster Kubernetes client")
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return NewHelper(clientset, dynamicClient), nil
}

// NewHelper builds a Helper from explicit clients. Tests pass the client-go
// fakes here.
func NewHelper(clientset kubernetes.Interface, dynamicClient dynamic.Interface) *Helper {
	return &Helper{
		clientset: clientset,
		dynamic:   dynamicClient,
	}
}

// GetSecretValue reads one key of a Secret. The clientset returns secret data
// already base64-decoded.
func (h *Helper) GetSecretValue(ctx context.Context, namespace, name, key string) (string, error) {
	if namespace == "" || name == "" {
		return "", fmt.Errorf("namespace and name are required")
	}
	secret, err := h.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", translateError(err, "Secret", namespace, name)
	}
	value, ok := secret.Data[key]
	if !ok {
		return "", serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", "Secret key "+key, "Namespace", namespace, "Name", name)
	}
	return string(value), nil
}

// GetConfigMapValue reads one key of a ConfigMap.
func (h *Helper) GetConfigMapValue(ctx context.Context, namespace, name, key string) (string, error) {
	if namespace == "" || name == "" {
		return "", fmt.Errorf("namespace and name are required")
	}
	configMap, err := h.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", translateError(err, "ConfigMap", namespace, name)
	}
	value, ok := configMap.Data[key]
	if !ok {
		return "", serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", "ConfigMap key "+key, "Namespace", namespace, "Name", name)
	}
	return value, nil
}

// ListEvents returns the events in a namespace, most recent last (the API
// server's natural order); callers sort as needed.
func (h *Helper) ListEvents(ctx context.Context, namespace string, limit int64) ([]corev1.Event, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	opts := metav1.ListOptions{}
	if limit > 0 {
		opts.Limit = limit
	}
	list, err := h.clientset.CoreV1().Events(namespace).List(ctx, opts)
	if err != nil {
		return nil, translateError(err, "Event", namespace, "")
	}
	return list.Items, nil
}

func (h *Helper) GetModel(ctx context.Context, namespace, name string) (*arkv1alpha1.Model, error) {
	model := &arkv1alpha1.Model{}
	if err := h.getResource(ctx, arkv1alpha1.ModelGVR, "Model", namespace, name, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (h *Helper) GetAgent(ctx context.Context, namespace, name string) (*arkv1alpha1.Agent, error) {
	agent := &arkv1alpha1.Agent{}
	if err := h.getResource(ctx, arkv1alpha1.AgentGVR, "Agent", namespace, name, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (h *Helper) GetQuery(ctx context.Context, namespace, name string) (*arkv1alpha1.Query, error) {
	query := &arkv1alpha1.Query{}
	if err := h.getResource(ctx, arkv1alpha1.QueryGVR, "Query", namespace, name, query); err != nil {
		return nil, err
	}
	return query, nil
}

func (h *Helper) GetEvaluation(ctx context.Context, namespace, name string) (*arkv1alpha1.Evaluation, error) {
	evaluation := &arkv1alpha1.Evaluation{}
	if err := h.getResource(ctx, arkv1alpha1.EvaluationGVR, "Evaluation", namespace, name, evaluation); err != nil {
		return nil, err
	}
	return evaluation, nil
}

func (h *Helper) getResource(ctx context.Context, gvr schema.GroupVersionResource, kind, namespace, name string, into any) error {
	if namespace == "" || name == "" {
		return fmt.Errorf("namespace and name are required")
	}
	obj, err := h.dynamic.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return translateError(err, kind, namespace, name)
	}
	return fromUnstructured(obj, into)
}

func fromUnstructured(obj *unstructured.Unstructured, into any) error {
	return runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, into)
}

// translateError maps Kubernetes API errors to the service error taxonomy so
// 404s and RBAC denials stay distinguishable downstream.
func translateError(err error, kind, namespace, name string) error {
	switch {
	case apierrors.IsNotFound(err):
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Kind", kind, "Namespace", namespace, "Name", name)
	case apierrors.IsForbidden(err):
		return serviceerrors.NewServiceError(messages.ResourceAccess, "Kind", kind, "Namespace", namespace, "Name", name)
	default:
		return err
	}
}
