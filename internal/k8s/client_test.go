package k8s_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/mckinsey/ark-evaluator/internal/k8s"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"
)

func newDynamic(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	scheme := runtime.NewScheme()
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{
		arkv1alpha1.ModelGVR:      "ModelList",
		arkv1alpha1.AgentGVR:      "AgentList",
		arkv1alpha1.QueryGVR:      "QueryList",
		arkv1alpha1.EvaluationGVR: "EvaluationList",
	}, objects...)
}

func TestGetSecretValue(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "model-credentials", Namespace: "default"},
		Data:       map[string][]byte{"token": []byte("s3cr3t")},
	})
	helper := k8s.NewHelper(clientset, newDynamic())

	value, err := helper.GetSecretValue(context.Background(), "default", "model-credentials", "token")
	if err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}
	if value != "s3cr3t" {
		t.Errorf("value = %q", value)
	}

	if _, err := helper.GetSecretValue(context.Background(), "default", "model-credentials", "missing"); err == nil {
		t.Error("missing key should error")
	}
	_, err = helper.GetSecretValue(context.Background(), "default", "no-such-secret", "token")
	serviceError, ok := serviceerrors.AsServiceError(err)
	if !ok || serviceError.StatusCode() != 404 {
		t.Errorf("err = %v, want a 404 service error", err)
	}
}

func TestGetSecretValueForbidden(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	clientset.PrependReactor("get", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(corev1.Resource("secrets"), "locked", errors.New("rbac"))
	})
	helper := k8s.NewHelper(clientset, newDynamic())

	_, err := helper.GetSecretValue(context.Background(), "default", "locked", "token")
	serviceError, ok := serviceerrors.AsServiceError(err)
	if !ok || serviceError.StatusCode() != 403 {
		t.Errorf("err = %v, want a 403 service error", err)
	}
}

func TestGetConfigMapValue(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "model-settings", Namespace: "default"},
		Data:       map[string]string{"base_url": "https://models.internal/v1"},
	})
	helper := k8s.NewHelper(clientset, newDynamic())

	value, err := helper.GetConfigMapValue(context.Background(), "default", "model-settings", "base_url")
	if err != nil {
		t.Fatalf("GetConfigMapValue: %v", err)
	}
	if value != "https://models.internal/v1" {
		t.Errorf("value = %q", value)
	}
}

func TestGetSecretValueRequiresCoordinates(t *testing.T) {
	helper := k8s.NewHelper(k8sfake.NewSimpleClientset(), newDynamic())
	if _, err := helper.GetSecretValue(context.Background(), "", "name", "key"); err == nil {
		t.Error("empty namespace should error")
	}
	if _, err := helper.GetConfigMapValue(context.Background(), "default", "", "key"); err == nil {
		t.Error("empty name should error")
	}
}

func TestListEvents(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(
		&corev1.Event{ObjectMeta: metav1.ObjectMeta{Name: "e1", Namespace: "default"}, Reason: "ToolCallStart"},
		&corev1.Event{ObjectMeta: metav1.ObjectMeta{Name: "e2", Namespace: "default"}, Reason: "ToolCallComplete"},
	)
	helper := k8s.NewHelper(clientset, newDynamic())

	events, err := helper.ListEvents(context.Background(), "default", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestGetQuery(t *testing.T) {
	query := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "ark.mckinsey.com/v1alpha1",
		"kind":       "Query",
		"metadata":   map[string]any{"name": "weather-query", "namespace": "default"},
		"spec":       map[string]any{"input": "What's the weather?"},
		"status": map[string]any{
			"phase": "done",
			"responses": []any{
				map[string]any{
					"target":  map[string]any{"type": "model", "name": "a"},
					"content": "cloudy",
				},
			},
		},
	}}
	helper := k8s.NewHelper(k8sfake.NewSimpleClientset(), newDynamic(query))

	resolved, err := helper.GetQuery(context.Background(), "default", "weather-query")
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if resolved.Spec.Input != "What's the weather?" {
		t.Errorf("input = %q", resolved.Spec.Input)
	}
	if resolved.Status == nil || len(resolved.Status.Responses) != 1 || resolved.Status.Responses[0].Content != "cloudy" {
		t.Errorf("status = %+v", resolved.Status)
	}
}

func TestGetModelNotFound(t *testing.T) {
	helper := k8s.NewHelper(k8sfake.NewSimpleClientset(), newDynamic())

	_, err := helper.GetModel(context.Background(), "default", "missing-model")
	serviceError, ok := serviceerrors.AsServiceError(err)
	if !ok || serviceError.StatusCode() != 404 {
		t.Errorf("err = %v, want a 404 service error", err)
	}
	if !strings.Contains(err.Error(), "missing-model") {
		t.Errorf("error should name the resource: %v", err)
	}
}

func TestGetEvaluation(t *testing.T) {
	evaluation := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "ark.mckinsey.com/v1alpha1",
		"kind":       "Evaluation",
		"metadata":   map[string]any{"name": "eval-a", "namespace": "default"},
		"status": map[string]any{
			"phase":  "done",
			"score":  "0.90",
			"passed": true,
		},
	}}
	helper := k8s.NewHelper(k8sfake.NewSimpleClientset(), newDynamic(evaluation))

	resolved, err := helper.GetEvaluation(context.Background(), "default", "eval-a")
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if resolved.Status == nil || resolved.Status.Score != "0.90" || !resolved.Status.Passed {
		t.Errorf("status = %+v", resolved.Status)
	}
}
