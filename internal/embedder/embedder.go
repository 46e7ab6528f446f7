// Package embedder converts query and document text into dense vector
// embeddings. Each implementation talks to a different backend (Bedrock,
// OpenAI, Azure OpenAI, Ollama) via plain HTTP — no additional SDK
// dependencies are required. All implementations embed one text per call;
// batching happens upstream in the ingestion pipeline, one chunk at a time.
package embedder

import (
	"context"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/telemetry"
	"github.com/r4ven-labs/ragpipe/internal/tokens"
)

// Embedder converts a single text into its embedding vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding for text. The vector length is fixed per
	// model; callers must not assume a particular dimension.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Model returns the embedding model identifier, used for telemetry
	// labels and startup logging.
	Model() string
}

// instrumented wraps an Embedder with telemetry side effects: call latency
// and an estimated input token count per embed. Failures are recorded with
// the same latency metric; the error passes through unchanged.
type instrumented struct {
	inner  Embedder
	system string
	sink   telemetry.Sink
}

// WithTelemetry wraps e so every Embed call records its duration and an
// estimated input token count against sink. The token count is a word-based
// estimate (words × 1.3), not an exact tokenizer count — embedding APIs do
// not consistently report usage, so the estimate keeps the metric populated
// across backends.
func WithTelemetry(e Embedder, system string, sink telemetry.Sink) Embedder {
	return &instrumented{inner: e, system: system, sink: telemetry.OrNop(sink)}
}

func (w *instrumented) Embed(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()
	vector, err := w.inner.Embed(ctx, text)
	w.sink.RecordOperationDuration(w.system, w.inner.Model(), "embeddings", time.Since(start))
	if err != nil {
		return nil, err
	}
	w.sink.RecordTokenUsage(w.system, w.inner.Model(), "embeddings", telemetry.TokenTypeInput, tokens.Estimate(text))
	return vector, nil
}

func (w *instrumented) Model() string {
	return w.inner.Model()
}
