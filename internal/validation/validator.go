package validation

import (
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	register(validate)
	registerCustomValidators(validate)
	return validate, nil
}

func register(instance *validator.Validate) {
	// register function to get tag name from json tags
	instance.RegisterTagNameFunc(
		func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		},
	)
}

func registerCustomValidators(instance *validator.Validate) {
	// Exactly one config variant must match the request type.
	instance.RegisterStructValidation(evaluationRequestConfigVariant, api.EvaluationRequest{})
}

// evaluationRequestConfigVariant enforces the one-variant-per-type invariant:
// the config fields for the request's type must be populated and the fields of
// every other variant must be absent.
func evaluationRequestConfigVariant(sl validator.StructLevel) {
	request := sl.Current().Interface().(api.EvaluationRequest)
	cfg := request.Config

	hasDirect := cfg.Input != "" || cfg.Output != ""
	hasQuery := cfg.QueryRef != nil
	hasBatch := len(cfg.Evaluations) > 0
	hasEvent := len(cfg.Rules) > 0

	switch request.Type {
	case api.EvaluationTypeDirect:
		if cfg.Input == "" {
			sl.ReportError(cfg.Input, "Input", "input", "required_for_direct", "")
		}
		if hasQuery || hasBatch || hasEvent {
			sl.ReportError(cfg, "Config", "config", "single_variant", "")
		}
	case api.EvaluationTypeQuery:
		if !hasQuery {
			sl.ReportError(cfg.QueryRef, "QueryRef", "queryRef", "required_for_query", "")
		}
		if hasDirect || hasBatch || hasEvent {
			sl.ReportError(cfg, "Config", "config", "single_variant", "")
		}
	case api.EvaluationTypeBatch:
		if !hasBatch {
			sl.ReportError(cfg.Evaluations, "Evaluations", "evaluations", "required_for_batch", "")
		}
		if hasDirect || hasQuery || hasEvent {
			sl.ReportError(cfg, "Config", "config", "single_variant", "")
		}
	case api.EvaluationTypeEvent:
		if !hasEvent {
			sl.ReportError(cfg.Rules, "Rules", "rules", "required_for_event", "")
		}
		if hasDirect || hasQuery || hasBatch {
			sl.ReportError(cfg, "Config", "config", "single_variant", "")
		}
	case api.EvaluationTypeBaseline:
		// baseline omits input/output; golden examples arrive via parameters
		if hasDirect || hasQuery || hasBatch || hasEvent {
			sl.ReportError(cfg, "Config", "config", "single_variant", "")
		}
	}
}
