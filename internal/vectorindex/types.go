// Package vectorindex implements the gateway to the remote vector index:
// batched upserts with rate-limit backoff, similarity queries with
// distance-to-score conversion and threshold filtering, and batched
// deletes. The Gateway speaks to a Backend (Qdrant in production, fakes in
// tests) and owns all batching, retry, and numeric-conversion semantics so
// backends stay thin transport adapters.
package vectorindex

// Record is the persisted unit in the vector index: one embedded chunk of
// a source document. Records are created during ingestion and immutable
// thereafter; removal is only by explicit delete-by-key.
type Record struct {
	// Key uniquely identifies the record in the index.
	Key string

	// Values is the embedding vector. The gateway coerces it to 32-bit
	// floats before transmission regardless of its native width.
	Values []float64

	// Metadata holds the chunk attributes stored alongside the vector:
	// source, chunk_index, total_chunks, file_name, ingested_at,
	// text_length, and the non-filterable source_text.
	Metadata map[string]any
}

// Match is one result of a similarity query. Matches are ephemeral — they
// exist only within a single query's response.
type Match struct {
	// Key is the matched record's key.
	Key string

	// Score is the similarity score in [0, 1], derived from the backend's
	// cosine distance as 1 - distance/2.
	Score float64

	// Metadata is the stored metadata mapping copied from the record.
	Metadata map[string]any
}

// Stats describes the index state. Availability is best-effort: when the
// backing service cannot report statistics the gateway returns a
// placeholder with Status "unavailable" rather than failing the caller.
type Stats struct {
	// TotalVectors is the number of vectors in the index (0 if unknown).
	TotalVectors uint64 `json:"total_vectors"`

	// Dimension is the configured embedding dimension.
	Dimension int `json:"dimension"`

	// Status is "ok" when the backend reported statistics, "unavailable"
	// otherwise.
	Status string `json:"status"`
}

// Vector is the wire representation of a record: the embedding coerced to
// 32-bit floats, ready for transmission to the backend.
type Vector struct {
	// Key uniquely identifies the vector in the index.
	Key string

	// Data is the 32-bit float embedding.
	Data []float32

	// Metadata is the stored metadata mapping.
	Metadata map[string]any
}

// RawResult is one backend query result before similarity conversion.
type RawResult struct {
	// Key is the matched vector's key.
	Key string

	// Distance is the cosine distance in [0, 2] reported by the backend.
	Distance float64

	// Metadata is the stored metadata mapping.
	Metadata map[string]any
}
