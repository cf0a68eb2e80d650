package ragas

import (
	"fmt"
	"strings"
)

// Sample is one neutral dataset entry before engine mapping.
type Sample map[string]any

// NewSample assembles the neutral entry from request fields. Empty context
// is left out rather than injected as an empty list, so metrics that require
// context fail validation instead of silently scoring nothing.
func NewSample(input, output string, context []string, groundTruth string) Sample {
	sample := Sample{
		FieldInputText:  input,
		FieldOutputText: output,
	}
	if len(context) > 0 {
		sample[FieldContext] = context
	}
	if groundTruth != "" {
		sample[FieldGroundTruth] = groundTruth
	}
	return sample
}

// Partition splits requested metric names into the ones whose input
// validates and the ones that fail, with a message per failure. Unknown
// names fail validation.
func Partition(names []string, sample Sample) (valid []*Metric, invalid []string, validationErrors map[string]string) {
	validationErrors = map[string]string{}
	for _, name := range names {
		metric, ok := Lookup(name)
		if !ok {
			invalid = append(invalid, name)
			validationErrors[name] = fmt.Sprintf("unknown metric, expected one of %s", strings.Join(MetricNames(), ", "))
			continue
		}
		if err := ValidateInput(metric, sample); err != nil {
			invalid = append(invalid, name)
			validationErrors[name] = err.Error()
			continue
		}
		valid = append(valid, metric)
	}
	return valid, invalid, validationErrors
}

// ValidateInput checks the sample against one metric's declared fields:
// required fields present, types matching, required strings non-empty after
// trimming and required string lists holding at least one non-empty element.
// Errors name the engine-facing field so messages line up with what the
// scoring engine expects.
func ValidateInput(metric *Metric, sample Sample) error {
	for _, field := range metric.RequiredFields {
		value, ok := sample[field.Name]
		if !ok {
			return fmt.Errorf("missing required field %q", metric.engineField(field.Name))
		}
		if err := checkField(field, metric.engineField(field.Name), value, true); err != nil {
			return err
		}
	}
	for _, field := range metric.OptionalFields {
		if value, ok := sample[field.Name]; ok {
			if err := checkField(field, metric.engineField(field.Name), value, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Metric) engineField(name string) string {
	if mapped := m.FieldMapping[name]; mapped != "" {
		return mapped
	}
	return name
}

func checkField(field FieldRequirement, displayName string, value any, required bool) error {
	switch field.Type {
	case FieldString:
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string", displayName)
		}
		if required && strings.TrimSpace(text) == "" {
			return fmt.Errorf("required field %q is empty", displayName)
		}
	case FieldStringList:
		list, ok := value.([]string)
		if !ok {
			return fmt.Errorf("field %q must be a list of strings", displayName)
		}
		if required {
			nonEmpty := false
			for _, item := range list {
				if strings.TrimSpace(item) != "" {
					nonEmpty = true
					break
				}
			}
			if !nonEmpty {
				return fmt.Errorf("required field %q has no non-empty elements", displayName)
			}
		}
	case FieldInt:
		switch value.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("field %q must be an integer", displayName)
		}
	case FieldFloat:
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			return fmt.Errorf("field %q must be a number", displayName)
		}
	case FieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", displayName)
		}
	default:
		return fmt.Errorf("field %q has unknown type %q", displayName, field.Type)
	}
	return nil
}

// PrepareDataset produces one engine-facing entry that is the union of the
// given metrics' required and optional fields, translated through each
// metric's field mapping. Later metrics never overwrite an already mapped
// value.
func PrepareDataset(metrics []*Metric, sample Sample) map[string]any {
	entry := map[string]any{}
	for _, metric := range metrics {
		for _, field := range append(append([]FieldRequirement{}, metric.RequiredFields...), metric.OptionalFields...) {
			value, ok := sample[field.Name]
			if !ok {
				continue
			}
			mapped := metric.FieldMapping[field.Name]
			if mapped == "" {
				mapped = field.Name
			}
			if _, exists := entry[mapped]; !exists {
				entry[mapped] = value
			}
		}
	}
	return entry
}
