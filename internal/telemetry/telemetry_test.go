package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusSink_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.RecordOperationDuration("ollama", "nomic-embed-text", "embeddings", 120*time.Millisecond)
	sink.RecordTokenUsage("ollama", "nomic-embed-text", "embeddings", TokenTypeInput, 42)
	sink.RecordTokenUsage("openai", "gpt-4o-mini", "chat", TokenTypeOutput, 9)
	sink.RecordChunksRetrieved(6)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
	}
	for _, want := range []string{
		"ragpipe_genai_operation_duration_seconds",
		"ragpipe_genai_token_usage_total",
		"ragpipe_rag_chunks_retrieved",
	} {
		if !byName[want] {
			t.Errorf("metric %s not registered", want)
		}
	}

	got := testutil.ToFloat64(sink.tokenUsage.WithLabelValues("ollama", "nomic-embed-text", "embeddings", string(TokenTypeInput)))
	if got != 42 {
		t.Errorf("input token counter = %v, want 42", got)
	}
}

func TestPrometheusSink_IgnoresNonPositiveTokenCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.RecordTokenUsage("ollama", "m", "embeddings", TokenTypeInput, 0)
	sink.RecordTokenUsage("ollama", "m", "embeddings", TokenTypeInput, -3)

	got := testutil.ToFloat64(sink.tokenUsage.WithLabelValues("ollama", "m", "embeddings", string(TokenTypeInput)))
	if got != 0 {
		t.Errorf("counter = %v, want 0", got)
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	sink := OrNop(nil)
	// Must be callable without panicking.
	sink.RecordOperationDuration("s", "m", "op", time.Second)
	sink.RecordTokenUsage("s", "m", "op", TokenTypeOutput, 10)
	sink.RecordChunksRetrieved(3)

	real := &PrometheusSink{}
	if OrNop(real) != Sink(real) {
		t.Error("OrNop must pass through a non-nil sink")
	}
}
