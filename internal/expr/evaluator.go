// Package expr evaluates event rule expressions. Helper-prefixed calls
// (tool.was_called('x'), sequence.check_execution_order([...])) are resolved
// by textual substitution against the event helpers; the rewritten
// expression is then compiled and run with CEL, which gives a closed
// evaluator with no attribute access, imports or arbitrary calls.
package expr

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/mckinsey/ark-evaluator/internal/events"
)

// helperCallRe recognizes one helper invocation with optional trailing
// property access, e.g. tool.get_execution_metrics('search').call_count.
var helperCallRe = regexp.MustCompile(`\b(tools?|agents?|teams?|llm|sequence|query)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*\(([^()]*)\)(?:\.([a-zA-Z_][a-zA-Z0-9_]*))?`)

// Evaluator resolves rule expressions against one analyzer's event stream.
type Evaluator struct {
	helpers  *events.Helpers
	analyzer *events.Analyzer
	logger   *slog.Logger

	bareEnv   *cel.Env
	eventsEnv *cel.Env
}

func NewEvaluator(analyzer *events.Analyzer, logger *slog.Logger) (*Evaluator, error) {
	bareEnv, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression environment: %w", err)
	}
	eventsEnv, err := cel.NewEnv(
		cel.Variable("events", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression environment: %w", err)
	}
	return &Evaluator{
		helpers:   events.NewHelpers(analyzer),
		analyzer:  analyzer,
		logger:    logger,
		bareEnv:   bareEnv,
		eventsEnv: eventsEnv,
	}, nil
}

// EvaluateRule returns the boolean outcome of one rule expression. Helper
// syntax takes the semantic path; anything else falls back to CEL over the
// raw events, then to the pattern table.
func (e *Evaluator) EvaluateRule(expression string) (bool, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return false, fmt.Errorf("empty expression")
	}
	if helperCallRe.MatchString(trimmed) {
		return e.evaluateSemantic(trimmed)
	}
	return e.evaluateFallback(trimmed)
}

func (e *Evaluator) evaluateSemantic(expression string) (bool, error) {
	var substituteErr error
	rewritten := helperCallRe.ReplaceAllStringFunc(expression, func(call string) string {
		groups := helperCallRe.FindStringSubmatch(call)
		value, err := e.dispatch(groups[1], groups[2], groups[3], groups[4])
		if err != nil {
			if substituteErr == nil {
				substituteErr = fmt.Errorf("%s: %w", call, err)
			}
			return "false"
		}
		return formatValue(value)
	})
	if substituteErr != nil {
		return false, substituteErr
	}

	normalized := normalize(rewritten)
	ast, issues := e.bareEnv.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("invalid expression %q: %w", normalized, issues.Err())
	}
	program, err := e.bareEnv.Program(ast)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(cel.NoVars())
	if err != nil {
		return false, err
	}
	return truthy(out.Value()), nil
}

// evaluateFallback handles expressions without helper syntax: bare reason
// names, then CEL over the scoped events, then the closed pattern table.
func (e *Evaluator) evaluateFallback(expression string) (bool, error) {
	scoped := e.analyzer.GetEvents(events.ScopeCurrent, nil, 0)

	if reason := bareReason(expression); reason != "" {
		for _, event := range scoped {
			if event.Reason == reason {
				return true, nil
			}
		}
		return false, nil
	}

	normalized := normalize(expression)
	if result, err := e.evalOverEvents(normalized, scoped); err == nil {
		return result, nil
	}

	if result, ok := matchPattern(normalized, scoped); ok {
		return result, nil
	}

	e.logger.Warn("Unrecognized rule expression, defaulting to event presence", "expression", expression)
	return len(scoped) > 0, nil
}

func (e *Evaluator) evalOverEvents(expression string, scoped []events.ParsedEvent) (bool, error) {
	ast, issues := e.eventsEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}
	program, err := e.eventsEnv.Program(ast)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"events": eventMaps(scoped)})
	if err != nil {
		return false, err
	}
	return truthy(out.Value()), nil
}

func eventMaps(scoped []events.ParsedEvent) []map[string]any {
	maps := make([]map[string]any, 0, len(scoped))
	for _, event := range scoped {
		entry := map[string]any{
			"name":    event.Name,
			"reason":  event.Reason,
			"type":    event.Type,
			"message": event.Message,
			"count":   int64(event.Count),
		}
		if event.Metadata != nil {
			entry["component"] = event.Metadata.Component
			entry["agentName"] = event.Metadata.AgentName
			entry["toolName"] = event.Metadata.ToolName
			entry["modelName"] = event.Metadata.ModelName
			entry["sessionId"] = event.Metadata.SessionID
		}
		maps = append(maps, entry)
	}
	return maps
}

// bareReason returns the reason name when the expression is a single
// (optionally quoted) event reason token.
func bareReason(expression string) string {
	token := strings.TrimSpace(expression)
	token = strings.Trim(token, `'"`)
	if !regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`).MatchString(token) {
		return ""
	}
	switch token {
	case events.ReasonQueryResolveStart, events.ReasonQueryResolveComplete, events.ReasonQueryResolveError,
		events.ReasonAgentExecutionStart, events.ReasonAgentExecutionComplete, events.ReasonAgentExecutionError,
		events.ReasonToolCallStart, events.ReasonToolCallComplete, events.ReasonToolCallError,
		events.ReasonTeamExecutionStart, events.ReasonTeamExecutionComplete, events.ReasonTeamExecutionError,
		events.ReasonTeamMember, events.ReasonLLMCallStart, events.ReasonLLMCallComplete,
		events.ReasonLLMCallError, events.ReasonA2ACall:
		return token
	}
	return ""
}

var sizeClauseRe = regexp.MustCompile(`^events\.size\(\)\s*(>=|<=|>|<|==)\s*(\d+)$`)
var existsClauseRe = regexp.MustCompile(`^events\.exists\(\s*\w+\s*,\s*\w+\.reason\s*==\s*['"]([A-Za-z0-9]+)['"]\s*\)$`)

// matchPattern evaluates the closed table of known shapes, conjunctions of
// clauses joined by &&.
func matchPattern(expression string, scoped []events.ParsedEvent) (bool, bool) {
	for _, clause := range strings.Split(expression, "&&") {
		clause = strings.TrimSpace(clause)
		switch {
		case sizeClauseRe.MatchString(clause):
			groups := sizeClauseRe.FindStringSubmatch(clause)
			bound, _ := strconv.Atoi(groups[2])
			if !compareInts(len(scoped), groups[1], bound) {
				return false, true
			}
		case existsClauseRe.MatchString(clause):
			groups := existsClauseRe.FindStringSubmatch(clause)
			found := false
			for _, event := range scoped {
				if event.Reason == groups[1] {
					found = true
					break
				}
			}
			if !found {
				return false, true
			}
		case bareReason(clause) != "":
			reason := bareReason(clause)
			found := false
			for _, event := range scoped {
				if event.Reason == reason {
					found = true
					break
				}
			}
			if !found {
				return false, true
			}
		default:
			return false, false
		}
	}
	return true, true
}

func compareInts(left int, op string, right int) bool {
	switch op {
	case ">":
		return left > right
	case ">=":
		return left >= right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case "==":
		return left == right
	}
	return false
}

var wordRe = regexp.MustCompile(`\b(and|or|not|True|False)\b`)

// normalize rewrites Python-style operators and literals to CEL syntax.
// Quoted string literals pass through untouched.
func normalize(expression string) string {
	var out strings.Builder
	var quote byte
	start := 0
	for i := 0; i < len(expression); i++ {
		c := expression[i]
		if quote != 0 {
			if c == quote {
				out.WriteString(expression[start : i+1])
				quote = 0
				start = i + 1
			}
			continue
		}
		if c == '\'' || c == '"' {
			out.WriteString(replaceWords(expression[start:i]))
			quote = c
			start = i
		}
	}
	if quote != 0 {
		// unterminated literal, leave the tail for the compiler to reject
		out.WriteString(expression[start:])
	} else {
		out.WriteString(replaceWords(expression[start:]))
	}
	return out.String()
}

func replaceWords(segment string) string {
	return wordRe.ReplaceAllStringFunc(segment, func(word string) string {
		switch word {
		case "and":
			return "&&"
		case "or":
			return "||"
		case "not":
			return "!"
		case "True":
			return "true"
		case "False":
			return "false"
		}
		return word
	})
}

func formatValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(v)
	case float64:
		// keep a decimal point so CEL types the literal as a double
		formatted := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(formatted, ".") {
			formatted += ".0"
		}
		return formatted
	case string:
		return strconv.Quote(v)
	}
	return "false"
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return false
}
