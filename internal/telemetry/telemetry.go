// Package telemetry defines the fire-and-forget metrics sink used by the
// RAG pipeline. Components receive a Sink at construction time — there is
// no ambient global. Call sites never branch on the sink's presence: pass
// [Nop] when metrics are not wanted. None of this is load-bearing for
// correctness; a sink that drops everything changes no behaviour.
package telemetry

import "time"

// TokenType partitions token-usage counters by direction.
type TokenType string

const (
	// TokenTypeInput counts tokens sent to a model.
	TokenTypeInput TokenType = "input"
	// TokenTypeOutput counts tokens produced by a model.
	TokenTypeOutput TokenType = "output"
)

// Sink receives duration and usage observations from the pipeline.
// Implementations must be safe to call from multiple goroutines and must
// never block the caller on export.
type Sink interface {
	// RecordOperationDuration records the wall-clock duration of one model
	// or index operation, keyed by (system, model, operation).
	RecordOperationDuration(system, model, operation string, d time.Duration)

	// RecordTokenUsage adds n tokens to the usage counter keyed by
	// (system, model, operation, token type). Estimated counts are allowed.
	RecordTokenUsage(system, model, operation string, tt TokenType, n int)

	// RecordChunksRetrieved records how many chunks one similarity search
	// returned after thresholding.
	RecordChunksRetrieved(found int)
}

// nop is a Sink that discards every observation.
type nop struct{}

func (nop) RecordOperationDuration(string, string, string, time.Duration) {}
func (nop) RecordTokenUsage(string, string, string, TokenType, int)       {}
func (nop) RecordChunksRetrieved(int)                                     {}

// Nop is the always-present no-op Sink. Constructors that accept an
// optional sink substitute Nop for nil so call sites stay branch-free.
var Nop Sink = nop{}

// OrNop returns s, or [Nop] when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}
