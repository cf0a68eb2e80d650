package executioncontext

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionContext contains execution context for API operations. This pattern enables
// type-safe passing of configuration and state to evaluation-related handlers, which
// receive an ExecutionContext instead of a raw http.Request.
//
// The ExecutionContext contains:
//   - Logger: A request-scoped logger with enriched fields (request_id, method, uri, etc.)
//   - Deadline: the evaluation time budget applied by the server middleware
type ExecutionContext struct {
	Ctx       context.Context
	RequestID string
	Logger    *slog.Logger
	StartedAt time.Time
	Deadline  time.Duration
}

// This struct contains per request context information
func NewExecutionContext(
	ctx context.Context,
	requestID string,
	logger *slog.Logger,
	deadline time.Duration,
) *ExecutionContext {
	return &ExecutionContext{
		Ctx:       ctx,
		RequestID: requestID,
		Logger:    logger,
		StartedAt: time.Now(),
		Deadline:  deadline,
	}
}

func (e *ExecutionContext) WithContext(ctx context.Context) *ExecutionContext {
	return &ExecutionContext{
		Ctx:       ctx,
		RequestID: e.RequestID,
		Logger:    e.Logger,
		StartedAt: e.StartedAt,
		Deadline:  e.Deadline,
	}
}
