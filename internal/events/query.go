package events

import "fmt"

// QueryHelper answers questions about query resolution as a whole.
type QueryHelper struct {
	analyzer *Analyzer
}

func (h *QueryHelper) events(scope Scope, reasons ...string) []ParsedEvent {
	return h.analyzer.GetEvents(scope, &EventFilter{Reasons: reasons}, 0)
}

// WasResolved reports whether the query reached ResolveComplete.
func (h *QueryHelper) WasResolved(scope Scope) bool {
	return len(h.events(scope, ReasonQueryResolveComplete)) > 0
}

// GetResolutionStatus classifies the query outcome as "completed", "error",
// "in-progress" or "unknown".
func (h *QueryHelper) GetResolutionStatus(scope Scope) string {
	if len(h.events(scope, ReasonQueryResolveComplete)) > 0 {
		return "completed"
	}
	if len(h.events(scope, ReasonQueryResolveError)) > 0 {
		return "error"
	}
	if len(h.events(scope, ReasonQueryResolveStart)) > 0 {
		return "in-progress"
	}
	return "unknown"
}

// GetExecutionTime returns the query's end-to-end duration in seconds from
// the ResolveComplete event metadata, falling back to the Start-to-Complete
// timestamp gap.
func (h *QueryHelper) GetExecutionTime(scope Scope) (float64, bool) {
	for _, event := range h.events(scope, ReasonQueryResolveComplete) {
		if event.Metadata == nil {
			continue
		}
		if seconds, err := ParseDurationSeconds(event.Metadata.Duration); err == nil {
			return seconds, true
		}
	}
	sequence := &SequenceHelper{analyzer: h.analyzer}
	return sequence.GetTimeBetweenEvents(ReasonQueryResolveStart, ReasonQueryResolveComplete, scope)
}

// GetSessionSummary renders a one-line overview of the scoped activity,
// useful inside judge prompts and response metadata.
func (h *QueryHelper) GetSessionSummary(scope Scope) string {
	all := h.analyzer.GetEvents(scope, nil, 0)
	counts := h.analyzer.CountEventsByType(scope)
	errors := 0
	for reason, count := range counts {
		switch reason {
		case ReasonToolCallError, ReasonAgentExecutionError, ReasonTeamExecutionError, ReasonLLMCallError, ReasonQueryResolveError:
			errors += count
		}
	}
	return fmt.Sprintf("%d events, %d tool calls, %d agent executions, %d llm calls, %d errors",
		len(all),
		counts[ReasonToolCallStart],
		counts[ReasonAgentExecutionStart],
		counts[ReasonLLMCallStart],
		errors)
}
