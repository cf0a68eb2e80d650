package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mckinsey/ark-evaluator/internal/events"
)

// callArgs are the parsed positional arguments plus recognized keywords.
type callArgs struct {
	positional []any
	scope      events.Scope
	strict     bool
}

func (a callArgs) str(i int) (string, error) {
	if i >= len(a.positional) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := a.positional[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string", i+1)
	}
	return s, nil
}

func (a callArgs) strOrEmpty(i int) string {
	if i >= len(a.positional) {
		return ""
	}
	s, _ := a.positional[i].(string)
	return s
}

func (a callArgs) list(i int) ([]string, error) {
	if i >= len(a.positional) {
		return nil, fmt.Errorf("missing argument %d", i+1)
	}
	l, ok := a.positional[i].([]string)
	if !ok {
		return nil, fmt.Errorf("argument %d must be a list", i+1)
	}
	return l, nil
}

// dispatch resolves one helper call to its native result. The property
// suffix selects a field of a metrics-style result
// (get_execution_metrics('n').call_count).
func (e *Evaluator) dispatch(prefix, method, rawArgs, property string) (any, error) {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	switch strings.TrimSuffix(strings.ToLower(prefix), "s") {
	case "tool":
		return e.dispatchTool(method, args, property)
	case "agent":
		return e.dispatchAgent(method, args)
	case "team":
		return e.dispatchTeam(method, args)
	case "llm":
		return e.dispatchLLM(method, args)
	case "sequence":
		return e.dispatchSequence(method, args)
	case "query":
		return e.dispatchQuery(method, args)
	}
	return nil, fmt.Errorf("unknown helper %q", prefix)
}

func (e *Evaluator) dispatchTool(method string, args callArgs, property string) (any, error) {
	h := e.helpers.Tool
	switch method {
	case "was_called":
		return h.WasCalled(args.strOrEmpty(0), args.scope), nil
	case "get_call_count":
		return h.GetCallCount(args.strOrEmpty(0), args.scope), nil
	case "get_success_rate":
		return h.GetSuccessRate(args.strOrEmpty(0), args.scope), nil
	case "had_error":
		return h.HadError(args.strOrEmpty(0), args.scope), nil
	case "parameter_contains":
		name, err := args.str(0)
		if err != nil {
			return nil, err
		}
		key, err := args.str(1)
		if err != nil {
			return nil, err
		}
		value, err := args.str(2)
		if err != nil {
			return nil, err
		}
		return h.ParameterContains(name, key, value, args.scope), nil
	case "parameter_type":
		name, err := args.str(0)
		if err != nil {
			return nil, err
		}
		key, err := args.str(1)
		if err != nil {
			return nil, err
		}
		expectedType, err := args.str(2)
		if err != nil {
			return nil, err
		}
		return h.ParameterType(name, key, expectedType, args.scope), nil
	case "get_execution_metrics":
		name := args.strOrEmpty(0)
		switch property {
		case "call_count":
			return h.GetCallCount(name, args.scope), nil
		case "success_rate":
			return h.GetSuccessRate(name, args.scope), nil
		case "avg_execution_time":
			times := h.GetExecutionTimes(name, args.scope)
			if len(times) == 0 {
				return 0.0, nil
			}
			total := 0.0
			for _, t := range times {
				total += t
			}
			return total / float64(len(times)), nil
		case "":
			return nil, fmt.Errorf("get_execution_metrics needs a property selector")
		}
		return nil, fmt.Errorf("unknown execution metric %q", property)
	}
	return nil, fmt.Errorf("unknown tool helper %q", method)
}

func (e *Evaluator) dispatchAgent(method string, args callArgs) (any, error) {
	h := e.helpers.Agent
	switch method {
	case "was_executed":
		return h.WasExecuted(args.strOrEmpty(0), args.scope), nil
	case "get_execution_count":
		return h.GetExecutionCount(args.strOrEmpty(0), args.scope), nil
	case "get_success_rate":
		return h.GetSuccessRate(args.strOrEmpty(0), args.scope), nil
	case "had_error":
		return len(h.GetErrorDetails(args.strOrEmpty(0), args.scope)) > 0, nil
	}
	return nil, fmt.Errorf("unknown agent helper %q", method)
}

func (e *Evaluator) dispatchTeam(method string, args callArgs) (any, error) {
	h := e.helpers.Team
	switch method {
	case "was_executed":
		return h.WasExecuted(args.strOrEmpty(0), args.scope), nil
	case "get_success_rate":
		return h.GetSuccessRate(args.strOrEmpty(0), args.scope), nil
	}
	return nil, fmt.Errorf("unknown team helper %q", method)
}

func (e *Evaluator) dispatchLLM(method string, args callArgs) (any, error) {
	h := e.helpers.LLM
	switch method {
	case "was_called":
		return h.GetCallCount(args.scope) > 0, nil
	case "get_call_count":
		return h.GetCallCount(args.scope), nil
	case "get_success_rate":
		return h.GetSuccessRate(args.scope), nil
	case "get_fastest_model":
		return h.GetFastestModel(args.scope), nil
	case "get_slowest_model":
		return h.GetSlowestModel(args.scope), nil
	}
	return nil, fmt.Errorf("unknown llm helper %q", method)
}

func (e *Evaluator) dispatchSequence(method string, args callArgs) (any, error) {
	h := e.helpers.Sequence
	switch method {
	case "check_execution_order":
		reasons, err := args.list(0)
		if err != nil {
			return nil, err
		}
		return h.CheckExecutionOrder(reasons, args.strict, args.scope), nil
	case "was_completed":
		// accepts a reason list or an explicit (start, complete) pair
		if reasons, err := args.list(0); err == nil {
			return h.CheckExecutionOrder(reasons, args.strict, args.scope), nil
		}
		start, err := args.str(0)
		if err != nil {
			return nil, err
		}
		complete, err := args.str(1)
		if err != nil {
			return nil, err
		}
		return h.WasCompleted(start, complete, args.scope), nil
	case "get_time_between":
		first, err := args.str(0)
		if err != nil {
			return nil, err
		}
		second, err := args.str(1)
		if err != nil {
			return nil, err
		}
		seconds, ok := h.GetTimeBetweenEvents(first, second, args.scope)
		if !ok {
			return 0.0, nil
		}
		return seconds, nil
	case "detect_parallel_execution":
		start, err := args.str(0)
		if err != nil {
			return nil, err
		}
		return h.DetectParallelExecution(start, args.scope), nil
	}
	return nil, fmt.Errorf("unknown sequence helper %q", method)
}

func (e *Evaluator) dispatchQuery(method string, args callArgs) (any, error) {
	h := e.helpers.Query
	switch method {
	case "was_resolved":
		return h.WasResolved(args.scope), nil
	case "get_execution_time":
		seconds, ok := h.GetExecutionTime(args.scope)
		if !ok {
			return 0.0, nil
		}
		return seconds, nil
	case "get_resolution_status":
		return h.GetResolutionStatus(args.scope), nil
	case "get_session_summary":
		return h.GetSessionSummary(args.scope), nil
	}
	return nil, fmt.Errorf("unknown query helper %q", method)
}

// parseArgs splits a raw argument string on commas outside quotes and
// brackets, decoding string, number, boolean and list literals plus the
// scope= and strict= keywords.
func parseArgs(raw string) (callArgs, error) {
	args := callArgs{scope: events.ScopeCurrent}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	for _, part := range splitArgs(raw) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := keywordArg(part); ok {
			switch key {
			case "scope":
				args.scope = events.ParseScope(strings.Trim(value, `'"`))
			case "strict":
				args.strict = strings.EqualFold(value, "true")
			default:
				return args, fmt.Errorf("unknown keyword argument %q", key)
			}
			continue
		}
		value, err := parseLiteral(part)
		if err != nil {
			return args, err
		}
		args.positional = append(args.positional, value)
	}
	return args, nil
}

func keywordArg(part string) (string, string, bool) {
	eq := strings.Index(part, "=")
	if eq <= 0 || strings.ContainsAny(part[:eq], `'"[`) {
		return "", "", false
	}
	return strings.TrimSpace(part[:eq]), strings.TrimSpace(part[eq+1:]), true
}

func parseLiteral(part string) (any, error) {
	switch {
	case strings.HasPrefix(part, "'") || strings.HasPrefix(part, `"`):
		return strings.Trim(part, `'"`), nil
	case strings.HasPrefix(part, "["):
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(part, "["), "]"))
		if inner == "" {
			return []string{}, nil
		}
		var items []string
		for _, item := range splitArgs(inner) {
			items = append(items, strings.Trim(strings.TrimSpace(item), `'"`))
		}
		return items, nil
	case strings.EqualFold(part, "true"):
		return true, nil
	case strings.EqualFold(part, "false"):
		return false, nil
	}
	if number, err := strconv.ParseFloat(part, 64); err == nil {
		return number, nil
	}
	return nil, fmt.Errorf("invalid argument %q", part)
}

func splitArgs(raw string) []string {
	var parts []string
	var quote byte
	depth := 0
	start := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	parts = append(parts, raw[start:])
	return parts
}
