package resolver

import (
	"context"
	"errors"

	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	arkv1alpha1 "github.com/mckinsey/ark-evaluator/pkg/apis/ark/v1alpha1"
)

// Marker strings for value-source resolution failures. Providers surface
// these as response metadata so misconfiguration is observable, not silent.
const (
	MarkerValueMissing          = "value-missing"
	MarkerSecretNotFound        = "secret-not-found"
	MarkerSecretAccessDenied    = "secret-access-denied"
	MarkerConfigMapNotFound     = "configmap-not-found"
	MarkerConfigMapAccessDenied = "configmap-access-denied"
	MarkerResolveFailed         = "resolve-failed"
)

// ResolveError is the typed failure of a value-source dereference. The marker
// identifies the failure kind; the wrapped error keeps the cluster detail.
type ResolveError struct {
	Marker string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return e.Marker + ": " + e.Err.Error()
	}
	return e.Marker
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// MarkerFor extracts the marker from a resolution error, defaulting to the
// generic marker for anything else.
func MarkerFor(err error) string {
	var resolveError *ResolveError
	if errors.As(err, &resolveError) {
		return resolveError.Marker
	}
	return MarkerResolveFailed
}

// ResolveValueSource dereferences a ValueSource. An inline value wins over a
// valueFrom reference; a source with neither fails with the value-missing
// marker. Secret and configmap failures keep their 403/404 distinction.
func (r *Resolver) ResolveValueSource(ctx context.Context, source arkv1alpha1.ValueSource, namespace string) (string, error) {
	if source.Value != "" {
		return source.Value, nil
	}
	if source.ValueFrom == nil {
		return "", &ResolveError{Marker: MarkerValueMissing}
	}

	if ref := source.ValueFrom.SecretKeyRef; ref != nil {
		value, err := r.client.GetSecretValue(ctx, namespace, ref.Name, ref.Key)
		if err != nil {
			return "", &ResolveError{Marker: secretMarker(err), Err: err}
		}
		return value, nil
	}
	if ref := source.ValueFrom.ConfigMapKeyRef; ref != nil {
		value, err := r.client.GetConfigMapValue(ctx, namespace, ref.Name, ref.Key)
		if err != nil {
			return "", &ResolveError{Marker: configMapMarker(err), Err: err}
		}
		return value, nil
	}
	return "", &ResolveError{Marker: MarkerValueMissing}
}

func secretMarker(err error) string {
	if serviceError, ok := serviceerrors.AsServiceError(err); ok {
		switch serviceError.Code {
		case messages.ResourceNotFound:
			return MarkerSecretNotFound
		case messages.ResourceAccess:
			return MarkerSecretAccessDenied
		}
	}
	return MarkerResolveFailed
}

func configMapMarker(err error) string {
	if serviceError, ok := serviceerrors.AsServiceError(err); ok {
		switch serviceError.Code {
		case messages.ResourceNotFound:
			return MarkerConfigMapNotFound
		case messages.ResourceAccess:
			return MarkerConfigMapAccessDenied
		}
	}
	return MarkerResolveFailed
}
