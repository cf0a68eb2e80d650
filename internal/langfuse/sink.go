// Package langfuse records evaluation traces to a Langfuse-compatible
// ingestion endpoint. The sink is an interface so deployments without
// Langfuse run with the noop implementation.
package langfuse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/common"
)

// Trace is one evaluation recorded as a Langfuse trace with a score.
type Trace struct {
	Name      string
	Input     string
	Output    string
	Score     float64
	Passed    bool
	Metadata  map[string]string
	SessionID string
	Timestamp time.Time
}

// Sink receives evaluation traces. Flush is called once on shutdown.
type Sink interface {
	Record(ctx context.Context, trace Trace)
	Flush(ctx context.Context) error
}

// NoopSink drops traces. Used when no Langfuse credentials are configured.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Trace) {}

func (NoopSink) Flush(context.Context) error { return nil }

// HTTPSink batches traces and ships them to the Langfuse ingestion API with
// basic auth (public key as username, secret key as password).
type HTTPSink struct {
	host       string
	publicKey  string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	pending []ingestionEvent
}

func NewHTTPSink(host, publicKey, secretKey string, httpClient *http.Client, logger *slog.Logger) *HTTPSink {
	return &HTTPSink{
		host:       host,
		publicKey:  publicKey,
		secretKey:  secretKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

type ingestionEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Body      any    `json:"body"`
}

type traceBody struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Input     string            `json:"input,omitempty"`
	Output    string            `json:"output,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type scoreBody struct {
	ID      string  `json:"id"`
	TraceID string  `json:"traceId"`
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Comment string  `json:"comment,omitempty"`
}

// Record queues a trace-create and score-create pair for the next flush.
func (s *HTTPSink) Record(_ context.Context, trace Trace) {
	timestamp := trace.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	traceID := common.GUID()
	comment := "failed"
	if trace.Passed {
		comment = "passed"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending,
		ingestionEvent{
			ID:        common.GUID(),
			Type:      "trace-create",
			Timestamp: timestamp.Format(time.RFC3339Nano),
			Body: traceBody{
				ID:        traceID,
				Name:      trace.Name,
				Input:     trace.Input,
				Output:    trace.Output,
				SessionID: trace.SessionID,
				Metadata:  trace.Metadata,
			},
		},
		ingestionEvent{
			ID:        common.GUID(),
			Type:      "score-create",
			Timestamp: timestamp.Format(time.RFC3339Nano),
			Body: scoreBody{
				ID:      common.GUID(),
				TraceID: traceID,
				Name:    "evaluation",
				Value:   trace.Score,
				Comment: comment,
			},
		},
	)
}

// Flush posts the queued batch. Failures are logged and returned but leave
// the queue empty; shutdown does not retry.
func (s *HTTPSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"batch": batch})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/public/ingestion", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.SetBasicAuth(s.publicKey, s.secretKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		s.logger.Error("Langfuse ingestion failed", "error", err)
		return err
	}
	defer func() { _ = response.Body.Close() }()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode >= 300 {
		err := fmt.Errorf("langfuse ingestion returned status %d", response.StatusCode)
		s.logger.Error("Langfuse ingestion failed", "status", response.StatusCode)
		return err
	}
	s.logger.Debug("Flushed langfuse batch", "events", len(batch))
	return nil
}
