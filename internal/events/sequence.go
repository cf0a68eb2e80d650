package events

import "time"

// SequenceHelper answers questions about the order and overlap of events.
// All checks work on the chronological view of the scoped events.
type SequenceHelper struct {
	analyzer *Analyzer
}

func (h *SequenceHelper) scoped(scope Scope) []ParsedEvent {
	events := h.analyzer.GetEvents(scope, nil, 0)
	return chronological(events)
}

// CheckExecutionOrder verifies that the given reasons occur in order. In
// strict mode no other lifecycle event may appear between consecutive
// expected reasons; in non-strict mode the reasons only need to appear as a
// subsequence.
func (h *SequenceHelper) CheckExecutionOrder(reasons []string, strict bool, scope Scope) bool {
	if len(reasons) == 0 {
		return true
	}
	events := h.scoped(scope)
	next := 0
	for _, event := range events {
		if event.Reason == reasons[next] {
			next++
			if next == len(reasons) {
				return true
			}
			continue
		}
		if strict && next > 0 {
			return false
		}
	}
	return false
}

// WasCompleted reports whether a Start reason has a matching Complete reason
// after it.
func (h *SequenceHelper) WasCompleted(startReason, completeReason string, scope Scope) bool {
	return h.CheckExecutionOrder([]string{startReason, completeReason}, false, scope)
}

// GetTimeBetweenEvents returns the seconds between the first occurrence of
// each reason, negative when the second reason precedes the first, and false
// when either reason is absent.
func (h *SequenceHelper) GetTimeBetweenEvents(firstReason, secondReason string, scope Scope) (float64, bool) {
	events := h.scoped(scope)
	var first, second *time.Time
	for i := range events {
		if first == nil && events[i].Reason == firstReason {
			t := eventTime(events[i])
			first = &t
		}
		if second == nil && events[i].Reason == secondReason {
			t := eventTime(events[i])
			second = &t
		}
	}
	if first == nil || second == nil {
		return 0, false
	}
	return second.Sub(*first).Seconds(), true
}

// DetectParallelExecution reports whether two lifecycle windows overlap: a
// second Start arrives before the first window's Complete or Error.
func (h *SequenceHelper) DetectParallelExecution(startReason string, scope Scope) bool {
	events := h.scoped(scope)
	open := 0
	for _, event := range events {
		switch event.Reason {
		case startReason:
			open++
			if open > 1 {
				return true
			}
		case completionOf(startReason), errorOf(startReason):
			if open > 0 {
				open--
			}
		}
	}
	return false
}

func eventTime(event ParsedEvent) time.Time {
	if !event.LastTimestamp.IsZero() {
		return event.LastTimestamp
	}
	return event.FirstTimestamp
}

func completionOf(startReason string) string {
	switch startReason {
	case ReasonToolCallStart:
		return ReasonToolCallComplete
	case ReasonAgentExecutionStart:
		return ReasonAgentExecutionComplete
	case ReasonTeamExecutionStart:
		return ReasonTeamExecutionComplete
	case ReasonLLMCallStart:
		return ReasonLLMCallComplete
	case ReasonQueryResolveStart:
		return ReasonQueryResolveComplete
	}
	return ""
}

func errorOf(startReason string) string {
	switch startReason {
	case ReasonToolCallStart:
		return ReasonToolCallError
	case ReasonAgentExecutionStart:
		return ReasonAgentExecutionError
	case ReasonTeamExecutionStart:
		return ReasonTeamExecutionError
	case ReasonLLMCallStart:
		return ReasonLLMCallError
	case ReasonQueryResolveStart:
		return ReasonQueryResolveError
	}
	return ""
}
