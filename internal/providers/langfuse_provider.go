package providers

import (
	"time"

	"github.com/mckinsey/ark-evaluator/internal/constants"
	"github.com/mckinsey/ark-evaluator/internal/executioncontext"
	"github.com/mckinsey/ark-evaluator/internal/langfuse"
	"github.com/mckinsey/ark-evaluator/internal/llm"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// LangfuseProvider runs the RAGAS scoring path and records the evaluation as
// a trace on the configured Langfuse sink.
type LangfuseProvider struct {
	deps Deps
}

func (p *LangfuseProvider) EvaluationTypes() []api.EvaluationType {
	return []api.EvaluationType{api.EvaluationTypeDirect, api.EvaluationTypeQuery}
}

func (p *LangfuseProvider) RequiredParameters() []string {
	return []string{constants.PARAM_METRICS}
}

func (p *LangfuseProvider) Evaluate(ctx *executioncontext.ExecutionContext, request *api.EvaluationRequest) (*api.EvaluationResponse, error) {
	response := &api.EvaluationResponse{Metadata: baseMetadata(constants.PROVIDER_LANGFUSE, request.Type)}

	ragasProvider := RagasProvider{deps: p.deps}
	response, err := ragasProvider.evaluate(ctx, request, response)
	if err != nil {
		return nil, err
	}

	sink := p.sinkFor(ctx, request.Parameters)
	score := 0.0
	if response.Score != nil {
		// the formatted score round-trips exactly for two decimal digits
		score = parseScore(*response.Score)
	}
	sink.Record(ctx.Ctx, langfuse.Trace{
		Name:      "ark-evaluation",
		Input:     request.Config.Input,
		Output:    request.Config.Output,
		Score:     score,
		Passed:    response.Passed,
		Metadata:  response.Metadata,
		SessionID: request.Parameters.GetString(constants.PARAM_SESSION_ID, ""),
		Timestamp: time.Now().UTC(),
	})
	if err := sink.Flush(ctx.Ctx); err != nil {
		// tracing is best-effort; the verdict stands
		response.Metadata["langfuse_flush_error"] = err.Error()
	}
	return response, nil
}

// sinkFor prefers request-scoped credentials over the process-wide sink, so
// one deployment can serve several Langfuse projects.
func (p *LangfuseProvider) sinkFor(ctx *executioncontext.ExecutionContext, params api.Parameters) langfuse.Sink {
	host := params.GetString("langfuse.host", "")
	publicKey := params.GetString("langfuse.public_key", "")
	secretKey := params.GetString("langfuse.secret_key", "")
	if host != "" && publicKey != "" && secretKey != "" {
		return langfuse.NewHTTPSink(host, publicKey, secretKey, llm.SharedHTTPClient(), ctx.Logger)
	}
	if p.deps.Sink != nil {
		return p.deps.Sink
	}
	return langfuse.NoopSink{}
}
