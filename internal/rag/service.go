package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/config"
	"github.com/r4ven-labs/ragpipe/internal/faults"
	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/telemetry"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// noContextAnswer is returned verbatim when retrieval finds no chunk at or
// above the similarity threshold. The model is never invoked in that case.
const noContextAnswer = "I couldn't find any relevant information to answer your question."

// previewLength is the maximum source text preview length in characters.
const previewLength = 200

// Embedder converts a query into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Retriever performs the similarity search against the vector index.
type Retriever interface {
	Query(ctx context.Context, embedding []float64, topK int, threshold float64, filter map[string]any) ([]vectorindex.Match, error)
}

// Answerer generates a grounded answer from the assembled context.
type Answerer interface {
	GenerateAnswer(ctx context.Context, query, contextText string) (string, error)
}

// Options are the retrieval defaults applied when a request leaves the
// corresponding fields unset.
type Options struct {
	// TopK is the default maximum number of chunks to retrieve.
	TopK int

	// Threshold is the default minimum similarity score.
	Threshold float64
}

// Service runs the query pipeline end to end. Safe for concurrent use.
type Service struct {
	embedder  Embedder
	retriever Retriever
	answerer  Answerer
	opts      Options
	sink      telemetry.Sink
	probes    map[string]Probe
}

// NewService wires the pipeline components together. Zero-valued opts fields
// fall back to the standard defaults (top 6 chunks at threshold 0.5).
func NewService(e Embedder, r Retriever, a Answerer, opts Options, sink telemetry.Sink) *Service {
	if opts.TopK <= 0 {
		opts.TopK = config.DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = config.DefaultSimilarityThreshold
	}
	return &Service{
		embedder:  e,
		retriever: r,
		answerer:  a,
		opts:      opts,
		sink:      telemetry.OrNop(sink),
		probes:    make(map[string]Probe),
	}
}

// ProcessQuery runs one query through embed → retrieve → assemble → generate,
// timing each phase. When retrieval returns nothing at or above the
// threshold, the fixed no-context answer is returned and generation is
// skipped entirely.
func (s *Service) ProcessQuery(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)
	total := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("rag: %w: query must not be empty", faults.ErrValidation)
	}

	topK := req.MaxChunks
	if topK <= 0 {
		topK = s.opts.TopK
	}
	threshold := s.opts.Threshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	// Phase 1: embed the query.
	embedStart := time.Now()
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	embedMS := millis(time.Since(embedStart))

	// Phase 2: similarity search.
	searchStart := time.Now()
	matches, err := s.retriever.Query(ctx, embedding, topK, threshold, req.MetadataFilter)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	searchMS := millis(time.Since(searchStart))
	s.sink.RecordChunksRetrieved(len(matches))

	if len(matches) == 0 {
		totalMS := millis(time.Since(total))
		log.Info("query found no relevant chunks",
			slog.Int("top_k", topK),
			slog.Float64("threshold", threshold),
			slog.Float64("total_ms", totalMS),
		)
		return &Result{
			Answer:           noContextAnswer,
			Query:            query,
			Sources:          []Source{},
			ProcessingTimeMS: totalMS,
			ChunksFound:      0,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			Performance: Breakdown{
				EmbeddingMS:    embedMS,
				VectorSearchMS: searchMS,
				TotalMS:        totalMS,
			},
		}, nil
	}

	// Phase 3: assemble the context block, one numbered section per chunk,
	// in retrieval order.
	parts := make([]string, 0, len(matches))
	sources := make([]Source, 0, len(matches))
	for i, m := range matches {
		text := metaString(m.Metadata, "source_text")
		parts = append(parts, fmt.Sprintf("[Source %d]: %s", i+1, text))
		sources = append(sources, Source{
			Source:          metaString(m.Metadata, "source"),
			ChunkIndex:      metaInt(m.Metadata, "chunk_index"),
			SimilarityScore: round4(m.Score),
			TextPreview:     preview(text),
		})
	}
	contextText := strings.Join(parts, "\n\n")

	// Phase 4: generate the grounded answer.
	genStart := time.Now()
	answer, err := s.answerer.GenerateAnswer(ctx, query, contextText)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}
	genMS := millis(time.Since(genStart))

	totalMS := millis(time.Since(total))
	log.Info("query processed",
		slog.Int("chunks_found", len(matches)),
		slog.Int("context_length", len(contextText)),
		slog.Float64("embedding_ms", embedMS),
		slog.Float64("vector_search_ms", searchMS),
		slog.Float64("llm_generation_ms", genMS),
		slog.Float64("total_ms", totalMS),
	)

	return &Result{
		Answer:           answer,
		Query:            query,
		Sources:          sources,
		ProcessingTimeMS: totalMS,
		ChunksFound:      len(matches),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Performance: Breakdown{
			EmbeddingMS:     embedMS,
			VectorSearchMS:  searchMS,
			LLMGenerationMS: genMS,
			TotalMS:         totalMS,
		},
	}, nil
}

// millis converts a duration to fractional milliseconds.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// round4 rounds to four decimal places.
func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// preview truncates text to previewLength characters with an ellipsis.
// Length is counted in runes, never bytes, so multi-byte text is returned
// whole when short enough and never cut mid-character.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

// metaString reads a string value from chunk metadata, empty when absent.
func metaString(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

// metaInt reads an integer value from chunk metadata, tolerating the numeric
// widenings JSON round-trips and index backends introduce.
func metaInt(md map[string]any, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
