// Package events fetches and parses Kubernetes events for a query, producing
// a typed event stream with scope filtering, plus the semantic helpers the
// rule DSL is built on. An Analyzer and its helpers are created per request.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/k8s"
	corev1 "k8s.io/api/core/v1"
)

// Event reasons emitted by the ark controllers.
const (
	ReasonQueryResolveStart      = "QueryResolveStart"
	ReasonQueryResolveComplete   = "QueryResolveComplete"
	ReasonQueryResolveError      = "QueryResolveError"
	ReasonAgentExecutionStart    = "AgentExecutionStart"
	ReasonAgentExecutionComplete = "AgentExecutionComplete"
	ReasonAgentExecutionError    = "AgentExecutionError"
	ReasonToolCallStart          = "ToolCallStart"
	ReasonToolCallComplete       = "ToolCallComplete"
	ReasonToolCallError          = "ToolCallError"
	ReasonTeamExecutionStart     = "TeamExecutionStart"
	ReasonTeamExecutionComplete  = "TeamExecutionComplete"
	ReasonTeamExecutionError     = "TeamExecutionError"
	ReasonTeamMember             = "TeamMember"
	ReasonLLMCallStart           = "LLMCallStart"
	ReasonLLMCallComplete        = "LLMCallComplete"
	ReasonLLMCallError           = "LLMCallError"
	ReasonA2ACall                = "A2ACall"
)

const queryKind = "Query"

// Scope narrows the event stream.
type Scope string

const (
	// ScopeAll applies no object filter.
	ScopeAll Scope = "all"
	// ScopeQuery keeps events whose involved object is the analyzer's query.
	ScopeQuery Scope = "query"
	// ScopeSession is query scope further filtered by session id.
	ScopeSession Scope = "session"
	// ScopeCurrent is session scope when a session id is set, else query scope.
	ScopeCurrent Scope = "current"
)

// ParseScope maps a DSL scope argument to a Scope, defaulting to current.
func ParseScope(s string) Scope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return ScopeAll
	case "query":
		return ScopeQuery
	case "session":
		return ScopeSession
	default:
		return ScopeCurrent
	}
}

// EventMetadata is the structured payload the controllers embed in event
// messages. Messages that do not parse as JSON leave metadata nil.
type EventMetadata struct {
	QueryID    string          `json:"queryId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	AgentName  string          `json:"agentName,omitempty"`
	TeamName   string          `json:"teamName,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ModelName  string          `json:"modelName,omitempty"`
	Component  string          `json:"component,omitempty"`
	Duration   string          `json:"duration,omitempty"`
	Error      string          `json:"error,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ParsedEvent is one Kubernetes event with its message opportunistically
// decoded.
type ParsedEvent struct {
	Name           string
	Namespace      string
	Reason         string
	Message        string
	FirstTimestamp time.Time
	LastTimestamp  time.Time
	Count          int32
	Type           string
	InvolvedObject corev1.ObjectReference
	Metadata       *EventMetadata
}

// EventFilter combines optional predicates; empty fields match everything.
type EventFilter struct {
	Reasons     []string
	Components  []string
	Agents      []string
	Tools       []string
	SessionIDs  []string
	QueryIDs    []string
	HasErrors   *bool
	MinDuration *float64
	MaxDuration *float64
	Since       *time.Time
	Until       *time.Time
}

// Analyzer fetches the namespace's events once and answers scoped views over
// the parsed stream.
type Analyzer struct {
	client    k8s.Interface
	namespace string
	queryName string
	sessionID string
	logger    *slog.Logger

	loaded []ParsedEvent
}

func NewAnalyzer(client k8s.Interface, namespace, queryName, sessionID string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client:    client,
		namespace: namespace,
		queryName: queryName,
		sessionID: sessionID,
		logger:    logger,
	}
}

// Load fetches and parses the namespace events. Safe to call once per
// request; scoped views read the cached stream.
func (a *Analyzer) Load(ctx context.Context) error {
	raw, err := a.client.ListEvents(ctx, a.namespace, 0)
	if err != nil {
		return err
	}
	a.loaded = make([]ParsedEvent, 0, len(raw))
	for i := range raw {
		a.loaded = append(a.loaded, parseEvent(&raw[i]))
	}
	sortNewestFirst(a.loaded)
	return nil
}

// SetEvents injects a pre-parsed stream; used by tests and by the event
// provider when replaying captured trajectories.
func (a *Analyzer) SetEvents(events []ParsedEvent) {
	a.loaded = append([]ParsedEvent(nil), events...)
	sortNewestFirst(a.loaded)
}

func (a *Analyzer) SessionID() string { return a.sessionID }
func (a *Analyzer) QueryName() string { return a.queryName }

// GetEvents returns the events visible in scope, optionally filtered, capped
// at limit when limit > 0. Events are sorted newest-first.
func (a *Analyzer) GetEvents(scope Scope, filter *EventFilter, limit int) []ParsedEvent {
	out := make([]ParsedEvent, 0, len(a.loaded))
	for _, event := range a.loaded {
		if !a.inScope(event, scope) {
			continue
		}
		if filter != nil && !filter.matches(event) {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// inScope implements the scope semantics. Session scope keeps events whose
// metadata carries the matching session id; events without metadata are only
// visible through explicit all scope.
func (a *Analyzer) inScope(event ParsedEvent, scope Scope) bool {
	if scope == ScopeCurrent {
		if a.sessionID != "" {
			scope = ScopeSession
		} else {
			scope = ScopeQuery
		}
	}
	switch scope {
	case ScopeAll:
		return true
	case ScopeQuery:
		return event.InvolvedObject.Kind == queryKind && event.InvolvedObject.Name == a.queryName
	case ScopeSession:
		if event.InvolvedObject.Kind != queryKind || event.InvolvedObject.Name != a.queryName {
			return false
		}
		return event.Metadata != nil && event.Metadata.SessionID == a.sessionID
	default:
		return false
	}
}

// Convenience views.

func (a *Analyzer) GetToolEvents(scope Scope) []ParsedEvent {
	return a.GetEvents(scope, &EventFilter{Reasons: []string{ReasonToolCallStart, ReasonToolCallComplete, ReasonToolCallError}}, 0)
}

func (a *Analyzer) GetAgentEvents(scope Scope) []ParsedEvent {
	return a.GetEvents(scope, &EventFilter{Reasons: []string{ReasonAgentExecutionStart, ReasonAgentExecutionComplete, ReasonAgentExecutionError}}, 0)
}

func (a *Analyzer) GetTeamEvents(scope Scope) []ParsedEvent {
	return a.GetEvents(scope, &EventFilter{Reasons: []string{ReasonTeamExecutionStart, ReasonTeamExecutionComplete, ReasonTeamExecutionError, ReasonTeamMember}}, 0)
}

func (a *Analyzer) GetLLMEvents(scope Scope) []ParsedEvent {
	return a.GetEvents(scope, &EventFilter{Reasons: []string{ReasonLLMCallStart, ReasonLLMCallComplete, ReasonLLMCallError}}, 0)
}

func (a *Analyzer) GetErrorEvents(scope Scope) []ParsedEvent {
	return a.GetEvents(scope, &EventFilter{Reasons: []string{
		ReasonQueryResolveError, ReasonAgentExecutionError, ReasonToolCallError, ReasonTeamExecutionError, ReasonLLMCallError,
	}}, 0)
}

// CountEventsByType returns event counts keyed by reason.
func (a *Analyzer) CountEventsByType(scope Scope) map[string]int {
	counts := map[string]int{}
	for _, event := range a.GetEvents(scope, nil, 0) {
		counts[event.Reason]++
	}
	return counts
}

func (f *EventFilter) matches(event ParsedEvent) bool {
	if len(f.Reasons) > 0 && !contains(f.Reasons, event.Reason) {
		return false
	}
	meta := event.Metadata
	if len(f.Components) > 0 && (meta == nil || !contains(f.Components, meta.Component)) {
		return false
	}
	if len(f.Agents) > 0 && (meta == nil || !contains(f.Agents, meta.AgentName)) {
		return false
	}
	if len(f.Tools) > 0 && (meta == nil || !contains(f.Tools, meta.ToolName)) {
		return false
	}
	if len(f.SessionIDs) > 0 && (meta == nil || !contains(f.SessionIDs, meta.SessionID)) {
		return false
	}
	if len(f.QueryIDs) > 0 && (meta == nil || !contains(f.QueryIDs, meta.QueryID)) {
		return false
	}
	if f.HasErrors != nil {
		hasError := isErrorReason(event.Reason) || (meta != nil && meta.Error != "")
		if hasError != *f.HasErrors {
			return false
		}
	}
	if f.MinDuration != nil || f.MaxDuration != nil {
		if meta == nil {
			return false
		}
		seconds, err := ParseDurationSeconds(meta.Duration)
		if err != nil {
			return false
		}
		if f.MinDuration != nil && seconds < *f.MinDuration {
			return false
		}
		if f.MaxDuration != nil && seconds > *f.MaxDuration {
			return false
		}
	}
	if f.Since != nil && event.LastTimestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.LastTimestamp.After(*f.Until) {
		return false
	}
	return true
}

func isErrorReason(reason string) bool {
	return strings.HasSuffix(reason, "Error")
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// parseEvent converts a raw event, opportunistically decoding the message as
// metadata JSON. Two shapes are recognized: a {"Metadata": {...}} wrapper and
// the metadata fields inline. Parse failures are non-fatal.
func parseEvent(event *corev1.Event) ParsedEvent {
	parsed := ParsedEvent{
		Name:           event.Name,
		Namespace:      event.Namespace,
		Reason:         event.Reason,
		Message:        event.Message,
		FirstTimestamp: event.FirstTimestamp.Time,
		LastTimestamp:  event.LastTimestamp.Time,
		Count:          event.Count,
		Type:           event.Type,
		InvolvedObject: event.InvolvedObject,
	}
	parsed.Metadata = parseMetadata(event.Message)
	return parsed
}

func parseMetadata(message string) *EventMetadata {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var wrapper struct {
		Metadata *EventMetadata `json:"Metadata"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil && wrapper.Metadata != nil {
		return wrapper.Metadata
	}

	var inline EventMetadata
	if err := json.Unmarshal([]byte(trimmed), &inline); err == nil && !inline.isEmpty() {
		return &inline
	}
	return nil
}

func (m *EventMetadata) isEmpty() bool {
	return m.QueryID == "" && m.SessionID == "" && m.AgentName == "" && m.TeamName == "" &&
		m.ToolName == "" && m.ModelName == "" && m.Component == "" && m.Duration == "" &&
		m.Error == "" && len(m.Parameters) == 0
}

// sortNewestFirst orders by (lastTimestamp, firstTimestamp) descending.
func sortNewestFirst(events []ParsedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].LastTimestamp.Equal(events[j].LastTimestamp) {
			return events[i].LastTimestamp.After(events[j].LastTimestamp)
		}
		return events[i].FirstTimestamp.After(events[j].FirstTimestamp)
	})
}

// chronological returns a copy of events ordered oldest-first, for sequence
// analysis.
func chronological(events []ParsedEvent) []ParsedEvent {
	out := append([]ParsedEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastTimestamp.Equal(out[j].LastTimestamp) {
			return out[i].LastTimestamp.Before(out[j].LastTimestamp)
		}
		return out[i].FirstTimestamp.Before(out[j].FirstTimestamp)
	})
	return out
}
