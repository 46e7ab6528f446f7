// Package faults defines the error taxonomy shared across the RAG pipeline.
// Each sentinel classifies a failure mode; producers wrap them with
// fmt.Errorf("...: %w: %w", sentinel, cause) so callers can match the class
// with errors.Is while keeping the underlying cause in the chain.
package faults

import "errors"

var (
	// ErrModelInvocation marks a failed call to an embedding or generation
	// backend — the request never produced a usable response.
	ErrModelInvocation = errors.New("model invocation failed")

	// ErrMalformedResponse marks a backend that responded but whose body is
	// missing the expected fields (no embedding, no content block).
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrVectorQuery marks a failed similarity query against the vector index.
	ErrVectorQuery = errors.New("vector query failed")

	// ErrUpsert marks a failed vector upsert, after internal rate-limit
	// retries have been exhausted.
	ErrUpsert = errors.New("vector upsert failed")

	// ErrDelete marks a failed vector delete. Earlier batches may already
	// have been removed when this is returned.
	ErrDelete = errors.New("vector delete failed")

	// ErrRateLimited marks a transient throttling response from the vector
	// index backend. It is retried internally for upserts only; if it
	// escapes, retries were exhausted.
	ErrRateLimited = errors.New("rate limited by backend")

	// ErrValidation marks client input rejected at the system boundary
	// (empty or oversized query, out-of-range parameters).
	ErrValidation = errors.New("invalid request")
)
