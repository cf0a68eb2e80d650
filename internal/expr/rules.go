package expr

import (
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// RuleResult is the outcome of one rule, kept for response metadata.
type RuleResult struct {
	Name       string
	Expression string
	Weight     float64
	Passed     bool
	Error      error
}

// ScoreRules evaluates every rule and returns the weighted score
// sum(weight when passed) / sum(weight). A rule that fails to evaluate
// counts as not passed but keeps its weight in the denominator; its error is
// recorded and logged. Zero or negative weights default to 1.
func (e *Evaluator) ScoreRules(rules []api.EventRule) (float64, []RuleResult) {
	results := make([]RuleResult, 0, len(rules))
	totalWeight := 0.0
	passedWeight := 0.0
	for _, rule := range rules {
		weight := rule.Weight
		if weight <= 0 {
			weight = 1
		}
		passed, err := e.EvaluateRule(rule.Expression)
		if err != nil {
			e.logger.Warn("Rule evaluation failed", "rule", rule.Name, "error", err)
			passed = false
		}
		totalWeight += weight
		if passed {
			passedWeight += weight
		}
		results = append(results, RuleResult{
			Name:       rule.Name,
			Expression: rule.Expression,
			Weight:     weight,
			Passed:     passed,
			Error:      err,
		})
	}
	if totalWeight == 0 {
		return 0, results
	}
	return passedWeight / totalWeight, results
}
