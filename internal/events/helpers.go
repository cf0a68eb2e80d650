package events

import (
	"encoding/json"
	"strings"
)

// Helpers bundles the per-request semantic facades over one analyzer.
type Helpers struct {
	Tool     *ToolHelper
	Agent    *AgentHelper
	Team     *TeamHelper
	LLM      *LLMHelper
	Sequence *SequenceHelper
	Query    *QueryHelper
}

func NewHelpers(analyzer *Analyzer) *Helpers {
	return &Helpers{
		Tool:     &ToolHelper{analyzer: analyzer},
		Agent:    &AgentHelper{analyzer: analyzer},
		Team:     &TeamHelper{analyzer: analyzer},
		LLM:      &LLMHelper{analyzer: analyzer},
		Sequence: &SequenceHelper{analyzer: analyzer},
		Query:    &QueryHelper{analyzer: analyzer},
	}
}

// successRate computes completes/(completes+errors), 0 when no outcomes.
func successRate(completes, errors int) float64 {
	if completes+errors == 0 {
		return 0
	}
	return float64(completes) / float64(completes+errors)
}

// ToolHelper answers questions about tool calls. Counting uses the Start
// event to avoid double-counting Start+Complete pairs.
type ToolHelper struct {
	analyzer *Analyzer
}

func (h *ToolHelper) events(scope Scope, reasons ...string) []ParsedEvent {
	return h.analyzer.GetEvents(scope, &EventFilter{Reasons: reasons}, 0)
}

func named(events []ParsedEvent, tool string) []ParsedEvent {
	if tool == "" {
		return events
	}
	out := make([]ParsedEvent, 0, len(events))
	for _, event := range events {
		if event.Metadata != nil && event.Metadata.ToolName == tool {
			out = append(out, event)
		}
	}
	return out
}

// WasCalled reports whether the tool (any tool when name is empty) was
// invoked in scope.
func (h *ToolHelper) WasCalled(name string, scope Scope) bool {
	return len(named(h.events(scope, ReasonToolCallStart), name)) > 0
}

func (h *ToolHelper) GetCallCount(name string, scope Scope) int {
	return len(named(h.events(scope, ReasonToolCallStart), name))
}

func (h *ToolHelper) GetSuccessRate(name string, scope Scope) float64 {
	completes := len(named(h.events(scope, ReasonToolCallComplete), name))
	errors := len(named(h.events(scope, ReasonToolCallError), name))
	return successRate(completes, errors)
}

func (h *ToolHelper) HadError(name string, scope Scope) bool {
	return len(named(h.events(scope, ReasonToolCallError), name)) > 0
}

// GetExecutionTimes returns the durations (seconds) of completed calls.
func (h *ToolHelper) GetExecutionTimes(name string, scope Scope) []float64 {
	var times []float64
	for _, event := range named(h.events(scope, ReasonToolCallComplete), name) {
		if event.Metadata == nil {
			continue
		}
		if seconds, err := ParseDurationSeconds(event.Metadata.Duration); err == nil {
			times = append(times, seconds)
		}
	}
	return times
}

// GetParameters decodes the JSON parameters of the most recent Start event
// for the tool.
func (h *ToolHelper) GetParameters(name string, scope Scope) map[string]any {
	for _, event := range named(h.events(scope, ReasonToolCallStart), name) {
		if event.Metadata == nil || len(event.Metadata.Parameters) == 0 {
			continue
		}
		params := map[string]any{}
		if err := json.Unmarshal(event.Metadata.Parameters, &params); err == nil {
			return params
		}
		// parameters may arrive double-encoded as a JSON string
		var nested string
		if err := json.Unmarshal(event.Metadata.Parameters, &nested); err == nil {
			if err := json.Unmarshal([]byte(nested), &params); err == nil {
				return params
			}
		}
	}
	return nil
}

// ParameterContains reports whether the tool's parameter key contains value,
// case-insensitively.
func (h *ToolHelper) ParameterContains(name, key, value string, scope Scope) bool {
	params := h.GetParameters(name, scope)
	if params == nil {
		return false
	}
	raw, ok := params[key]
	if !ok {
		return false
	}
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return false
		}
		text = string(encoded)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(value))
}

// ParameterType checks the natural JSON type of the tool's parameter key:
// string, integer, float (accepts integers) or boolean.
func (h *ToolHelper) ParameterType(name, key, expectedType string, scope Scope) bool {
	params := h.GetParameters(name, scope)
	if params == nil {
		return false
	}
	raw, ok := params[key]
	if !ok {
		return false
	}
	switch strings.ToLower(expectedType) {
	case "string":
		_, ok := raw.(string)
		return ok
	case "integer":
		number, ok := raw.(float64)
		return ok && number == float64(int64(number))
	case "float":
		_, ok := raw.(float64)
		return ok
	case "boolean":
		_, ok := raw.(bool)
		return ok
	default:
		return false
	}
}

// AgentHelper answers questions about agent executions.
type AgentHelper struct {
	analyzer *Analyzer
}

func (h *AgentHelper) events(scope Scope, reasons ...string) []ParsedEvent {
	return h.analyzer.GetEvents(scope, &EventFilter{Reasons: reasons}, 0)
}

func agentNamed(events []ParsedEvent, agent string) []ParsedEvent {
	if agent == "" {
		return events
	}
	out := make([]ParsedEvent, 0, len(events))
	for _, event := range events {
		if event.Metadata != nil && event.Metadata.AgentName == agent {
			out = append(out, event)
		}
	}
	return out
}

func (h *AgentHelper) WasExecuted(name string, scope Scope) bool {
	return len(agentNamed(h.events(scope, ReasonAgentExecutionStart), name)) > 0
}

func (h *AgentHelper) GetExecutionCount(name string, scope Scope) int {
	return len(agentNamed(h.events(scope, ReasonAgentExecutionStart), name))
}

func (h *AgentHelper) GetSuccessRate(name string, scope Scope) float64 {
	completes := len(agentNamed(h.events(scope, ReasonAgentExecutionComplete), name))
	errors := len(agentNamed(h.events(scope, ReasonAgentExecutionError), name))
	return successRate(completes, errors)
}

func (h *AgentHelper) GetErrorDetails(name string, scope Scope) []string {
	var details []string
	for _, event := range agentNamed(h.events(scope, ReasonAgentExecutionError), name) {
		if event.Metadata != nil && event.Metadata.Error != "" {
			details = append(details, event.Metadata.Error)
		} else if event.Message != "" {
			details = append(details, event.Message)
		}
	}
	return details
}

// GetModelsUsedBy lists the distinct models the agent's LLM calls used.
func (h *AgentHelper) GetModelsUsedBy(name string, scope Scope) []string {
	seen := map[string]bool{}
	var models []string
	for _, event := range h.events(scope, ReasonLLMCallStart, ReasonLLMCallComplete) {
		if event.Metadata == nil || event.Metadata.ModelName == "" {
			continue
		}
		if name != "" && event.Metadata.AgentName != name {
			continue
		}
		if !seen[event.Metadata.ModelName] {
			seen[event.Metadata.ModelName] = true
			models = append(models, event.Metadata.ModelName)
		}
	}
	return models
}

// TeamHelper answers questions about team executions.
type TeamHelper struct {
	analyzer *Analyzer
}

func teamNamed(events []ParsedEvent, team string) []ParsedEvent {
	if team == "" {
		return events
	}
	out := make([]ParsedEvent, 0, len(events))
	for _, event := range events {
		if event.Metadata != nil && event.Metadata.TeamName == team {
			out = append(out, event)
		}
	}
	return out
}

func (h *TeamHelper) WasExecuted(name string, scope Scope) bool {
	started := h.analyzer.GetEvents(scope, &EventFilter{Reasons: []string{ReasonTeamExecutionStart}}, 0)
	return len(teamNamed(started, name)) > 0
}

func (h *TeamHelper) GetSuccessRate(name string, scope Scope) float64 {
	completes := len(teamNamed(h.analyzer.GetEvents(scope, &EventFilter{Reasons: []string{ReasonTeamExecutionComplete}}, 0), name))
	errors := len(teamNamed(h.analyzer.GetEvents(scope, &EventFilter{Reasons: []string{ReasonTeamExecutionError}}, 0), name))
	return successRate(completes, errors)
}

// LLMHelper answers questions about model calls.
type LLMHelper struct {
	analyzer *Analyzer
}

func (h *LLMHelper) events(scope Scope, reasons ...string) []ParsedEvent {
	return h.analyzer.GetEvents(scope, &EventFilter{Reasons: reasons}, 0)
}

func (h *LLMHelper) GetCallCount(scope Scope) int {
	return len(h.events(scope, ReasonLLMCallStart))
}

func (h *LLMHelper) GetSuccessRate(scope Scope) float64 {
	completes := len(h.events(scope, ReasonLLMCallComplete))
	errors := len(h.events(scope, ReasonLLMCallError))
	return successRate(completes, errors)
}

func (h *LLMHelper) GetResponseTimes(scope Scope) []float64 {
	var times []float64
	for _, event := range h.events(scope, ReasonLLMCallComplete) {
		if event.Metadata == nil {
			continue
		}
		if seconds, err := ParseDurationSeconds(event.Metadata.Duration); err == nil {
			times = append(times, seconds)
		}
	}
	return times
}

// GetUsageByModel counts calls per model name.
func (h *LLMHelper) GetUsageByModel(scope Scope) map[string]int {
	usage := map[string]int{}
	for _, event := range h.events(scope, ReasonLLMCallStart) {
		if event.Metadata != nil && event.Metadata.ModelName != "" {
			usage[event.Metadata.ModelName]++
		}
	}
	return usage
}

func (h *LLMHelper) averageResponseTimes(scope Scope) map[string]float64 {
	totals := map[string]float64{}
	counts := map[string]int{}
	for _, event := range h.events(scope, ReasonLLMCallComplete) {
		if event.Metadata == nil || event.Metadata.ModelName == "" {
			continue
		}
		seconds, err := ParseDurationSeconds(event.Metadata.Duration)
		if err != nil {
			continue
		}
		totals[event.Metadata.ModelName] += seconds
		counts[event.Metadata.ModelName]++
	}
	averages := map[string]float64{}
	for model, total := range totals {
		averages[model] = total / float64(counts[model])
	}
	return averages
}

func (h *LLMHelper) GetFastestModel(scope Scope) string {
	best := ""
	bestAverage := 0.0
	for model, average := range h.averageResponseTimes(scope) {
		if best == "" || average < bestAverage {
			best = model
			bestAverage = average
		}
	}
	return best
}

func (h *LLMHelper) GetSlowestModel(scope Scope) string {
	worst := ""
	worstAverage := 0.0
	for model, average := range h.averageResponseTimes(scope) {
		if worst == "" || average > worstAverage {
			worst = model
			worstAverage = average
		}
	}
	return worst
}
