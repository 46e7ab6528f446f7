// Package rag orchestrates the query pipeline: embed the query, retrieve
// similar chunks from the vector index, assemble the context block, and
// generate a grounded answer — with per-phase timing captured along the way.
package rag

// Request is one query submission. Zero-valued optional fields fall back to
// the service's configured defaults.
type Request struct {
	// Query is the user's question. Must be non-empty.
	Query string `json:"query"`

	// MaxChunks caps how many chunks retrieval may return (0 = default).
	MaxChunks int `json:"max_chunks,omitempty"`

	// SimilarityThreshold is the minimum similarity score a chunk must meet
	// to be used (nil = default).
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`

	// MetadataFilter restricts retrieval to chunks whose metadata matches
	// every entry (nil = no filter).
	MetadataFilter map[string]any `json:"metadata_filter,omitempty"`
}

// Source describes one chunk that grounded the answer, in retrieval order.
type Source struct {
	// Source is the originating document identifier.
	Source string `json:"source"`

	// ChunkIndex is the chunk's position within the source document.
	ChunkIndex int `json:"chunk_index"`

	// SimilarityScore is the chunk's similarity to the query, rounded to
	// four decimal places.
	SimilarityScore float64 `json:"similarity_score"`

	// TextPreview is the first 200 characters of the chunk text, with a
	// trailing ellipsis when truncated.
	TextPreview string `json:"text_preview"`
}

// Breakdown carries per-phase wall-clock timings in milliseconds.
type Breakdown struct {
	EmbeddingMS     float64 `json:"embedding_ms"`
	VectorSearchMS  float64 `json:"vector_search_ms"`
	LLMGenerationMS float64 `json:"llm_generation_ms"`
	TotalMS         float64 `json:"total_ms"`
}

// Result is the outcome of one query: the answer, the sources that grounded
// it, and the timing breakdown.
type Result struct {
	// Answer is the generated answer, or the fixed no-context answer when
	// retrieval found nothing above threshold.
	Answer string `json:"answer"`

	// Query echoes the submitted question.
	Query string `json:"query"`

	// Sources lists the chunks used, in retrieval order. Empty when no
	// chunk met the threshold.
	Sources []Source `json:"sources"`

	// ProcessingTimeMS is the total pipeline wall-clock time.
	ProcessingTimeMS float64 `json:"processing_time_ms"`

	// ChunksFound is the number of chunks that met the threshold.
	ChunksFound int `json:"chunks_found"`

	// Timestamp is when the query completed, in RFC 3339 UTC.
	Timestamp string `json:"timestamp"`

	// Performance is the per-phase timing breakdown.
	Performance Breakdown `json:"performance_breakdown"`
}
