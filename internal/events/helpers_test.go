package events_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/mckinsey/ark-evaluator/internal/events"
)

func toolEvent(reason, tool string, offsetSeconds int, extra *events.EventMetadata) events.ParsedEvent {
	meta := &events.EventMetadata{ToolName: tool}
	if extra != nil {
		meta.Duration = extra.Duration
		meta.Parameters = extra.Parameters
		meta.Error = extra.Error
	}
	return parsed(reason, offsetSeconds, meta)
}

func TestToolHelperCounting(t *testing.T) {
	helpers := events.NewHelpers(newAnalyzer("",
		toolEvent("ToolCallStart", "search", 0, nil),
		toolEvent("ToolCallComplete", "search", 1, nil),
		toolEvent("ToolCallStart", "search", 2, nil),
		toolEvent("ToolCallError", "search", 3, nil),
		toolEvent("ToolCallStart", "fetch", 4, nil),
	))

	if !helpers.Tool.WasCalled("search", events.ScopeQuery) {
		t.Error("WasCalled(search) = false")
	}
	if helpers.Tool.WasCalled("absent", events.ScopeQuery) {
		t.Error("WasCalled(absent) = true")
	}
	// only Start events count, Complete/Error never double-count
	if got := helpers.Tool.GetCallCount("search", events.ScopeQuery); got != 2 {
		t.Errorf("GetCallCount(search) = %d, want 2", got)
	}
	if got := helpers.Tool.GetCallCount("", events.ScopeQuery); got != 3 {
		t.Errorf("GetCallCount(any) = %d, want 3", got)
	}
	if got := helpers.Tool.GetSuccessRate("search", events.ScopeQuery); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("GetSuccessRate(search) = %v, want 0.5", got)
	}
	if !helpers.Tool.HadError("search", events.ScopeQuery) {
		t.Error("HadError(search) = false")
	}
}

func TestToolHelperSuccessRateNoOutcomes(t *testing.T) {
	helpers := events.NewHelpers(newAnalyzer("",
		toolEvent("ToolCallStart", "search", 0, nil),
	))
	if got := helpers.Tool.GetSuccessRate("search", events.ScopeQuery); got != 0 {
		t.Errorf("GetSuccessRate with no outcomes = %v, want 0", got)
	}
}

func TestToolHelperParameters(t *testing.T) {
	params := json.RawMessage(`{"q": "Hello World", "limit": 10, "score": 1.5, "deep": true}`)
	helpers := events.NewHelpers(newAnalyzer("",
		toolEvent("ToolCallStart", "search", 0, &events.EventMetadata{Parameters: params}),
	))

	decoded := helpers.Tool.GetParameters("search", events.ScopeQuery)
	if decoded == nil || decoded["q"] != "Hello World" {
		t.Fatalf("GetParameters = %v", decoded)
	}
	if !helpers.Tool.ParameterContains("search", "q", "hello", events.ScopeQuery) {
		t.Error("ParameterContains should match case-insensitively")
	}
	if helpers.Tool.ParameterContains("search", "q", "goodbye", events.ScopeQuery) {
		t.Error("ParameterContains matched missing substring")
	}
	if !helpers.Tool.ParameterType("search", "q", "string", events.ScopeQuery) {
		t.Error("ParameterType(q, string) = false")
	}
	if !helpers.Tool.ParameterType("search", "limit", "integer", events.ScopeQuery) {
		t.Error("ParameterType(limit, integer) = false")
	}
	if helpers.Tool.ParameterType("search", "score", "integer", events.ScopeQuery) {
		t.Error("ParameterType(score, integer) = true for 1.5")
	}
	if !helpers.Tool.ParameterType("search", "score", "float", events.ScopeQuery) {
		t.Error("ParameterType(score, float) = false")
	}
	if !helpers.Tool.ParameterType("search", "deep", "boolean", events.ScopeQuery) {
		t.Error("ParameterType(deep, boolean) = false")
	}
}

func TestToolHelperDoubleEncodedParameters(t *testing.T) {
	// controllers sometimes emit parameters as a JSON string of JSON
	encoded, _ := json.Marshal(`{"q": "hello"}`)
	helpers := events.NewHelpers(newAnalyzer("",
		toolEvent("ToolCallStart", "search", 0, &events.EventMetadata{Parameters: encoded}),
	))
	decoded := helpers.Tool.GetParameters("search", events.ScopeQuery)
	if decoded == nil || decoded["q"] != "hello" {
		t.Errorf("GetParameters double-encoded = %v", decoded)
	}
}

func TestToolHelperExecutionTimes(t *testing.T) {
	helpers := events.NewHelpers(newAnalyzer("",
		toolEvent("ToolCallComplete", "search", 0, &events.EventMetadata{Duration: "1.5s"}),
		toolEvent("ToolCallComplete", "search", 1, &events.EventMetadata{Duration: "500ms"}),
	))
	times := helpers.Tool.GetExecutionTimes("search", events.ScopeQuery)
	if len(times) != 2 {
		t.Fatalf("got %d times, want 2", len(times))
	}
	total := times[0] + times[1]
	if math.Abs(total-2.0) > 1e-9 {
		t.Errorf("total execution time = %v, want 2.0", total)
	}
}

func TestAgentHelper(t *testing.T) {
	agentMeta := func(agent, errText string) *events.EventMetadata {
		return &events.EventMetadata{AgentName: agent, Error: errText}
	}
	helpers := events.NewHelpers(newAnalyzer("",
		parsed("AgentExecutionStart", 0, agentMeta("researcher", "")),
		parsed("AgentExecutionComplete", 1, agentMeta("researcher", "")),
		parsed("AgentExecutionStart", 2, agentMeta("writer", "")),
		parsed("AgentExecutionError", 3, agentMeta("writer", "model timeout")),
		parsed("LLMCallStart", 4, &events.EventMetadata{AgentName: "researcher", ModelName: "gpt-4"}),
		parsed("LLMCallStart", 5, &events.EventMetadata{AgentName: "researcher", ModelName: "claude"}),
	))

	if !helpers.Agent.WasExecuted("researcher", events.ScopeQuery) {
		t.Error("WasExecuted(researcher) = false")
	}
	if got := helpers.Agent.GetExecutionCount("", events.ScopeQuery); got != 2 {
		t.Errorf("GetExecutionCount(any) = %d, want 2", got)
	}
	if got := helpers.Agent.GetSuccessRate("researcher", events.ScopeQuery); got != 1 {
		t.Errorf("GetSuccessRate(researcher) = %v, want 1", got)
	}
	details := helpers.Agent.GetErrorDetails("writer", events.ScopeQuery)
	if len(details) != 1 || details[0] != "model timeout" {
		t.Errorf("GetErrorDetails(writer) = %v", details)
	}
	models := helpers.Agent.GetModelsUsedBy("researcher", events.ScopeQuery)
	if len(models) != 2 {
		t.Errorf("GetModelsUsedBy(researcher) = %v", models)
	}
}

func TestLLMHelperFastestSlowest(t *testing.T) {
	llmComplete := func(model, duration string, offset int) events.ParsedEvent {
		return parsed("LLMCallComplete", offset, &events.EventMetadata{ModelName: model, Duration: duration})
	}
	helpers := events.NewHelpers(newAnalyzer("",
		llmComplete("fast-model", "1s", 0),
		llmComplete("fast-model", "2s", 1),
		llmComplete("slow-model", "10s", 2),
	))
	if got := helpers.LLM.GetFastestModel(events.ScopeQuery); got != "fast-model" {
		t.Errorf("GetFastestModel = %q", got)
	}
	if got := helpers.LLM.GetSlowestModel(events.ScopeQuery); got != "slow-model" {
		t.Errorf("GetSlowestModel = %q", got)
	}
	usage := helpers.LLM.GetUsageByModel(events.ScopeQuery)
	if len(usage) != 0 {
		t.Errorf("GetUsageByModel counts Start events only, got %v", usage)
	}
}

func TestQueryHelper(t *testing.T) {
	helpers := events.NewHelpers(newAnalyzer("",
		parsed("QueryResolveStart", 0, nil),
		parsed("ToolCallStart", 1, &events.EventMetadata{ToolName: "search"}),
		parsed("QueryResolveComplete", 5, &events.EventMetadata{Duration: "5s"}),
	))
	if !helpers.Query.WasResolved(events.ScopeQuery) {
		t.Error("WasResolved = false")
	}
	if got := helpers.Query.GetResolutionStatus(events.ScopeQuery); got != "completed" {
		t.Errorf("GetResolutionStatus = %q", got)
	}
	seconds, ok := helpers.Query.GetExecutionTime(events.ScopeQuery)
	if !ok || seconds != 5 {
		t.Errorf("GetExecutionTime = (%v, %v), want (5, true)", seconds, ok)
	}
	summary := helpers.Query.GetSessionSummary(events.ScopeQuery)
	if summary != "3 events, 1 tool calls, 0 agent executions, 0 llm calls, 0 errors" {
		t.Errorf("GetSessionSummary = %q", summary)
	}
}

func TestQueryHelperStatusProgression(t *testing.T) {
	inProgress := events.NewHelpers(newAnalyzer("", parsed("QueryResolveStart", 0, nil)))
	if got := inProgress.Query.GetResolutionStatus(events.ScopeQuery); got != "in-progress" {
		t.Errorf("status = %q, want in-progress", got)
	}
	failed := events.NewHelpers(newAnalyzer("",
		parsed("QueryResolveStart", 0, nil),
		parsed("QueryResolveError", 1, nil),
	))
	if got := failed.Query.GetResolutionStatus(events.ScopeQuery); got != "error" {
		t.Errorf("status = %q, want error", got)
	}
	empty := events.NewHelpers(newAnalyzer(""))
	if got := empty.Query.GetResolutionStatus(events.ScopeQuery); got != "unknown" {
		t.Errorf("status = %q, want unknown", got)
	}
}
