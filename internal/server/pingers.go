package server

import (
	"context"
	"fmt"
)

// healthChecker is satisfied by backends that expose a native health RPC,
// such as *vectorindex.QdrantBackend.
type healthChecker interface {
	Ping(ctx context.Context) error
}

// IndexPinger probes the vector index backend using its native health check.
// It satisfies the Pinger interface and is used by GET /api/ready.
type IndexPinger struct {
	// backend is the vector index backend to probe.
	backend healthChecker
}

// NewIndexPinger constructs an IndexPinger for the given backend.
func NewIndexPinger(backend healthChecker) *IndexPinger {
	return &IndexPinger{backend: backend}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "qdrant" }

// Ping calls the backend's health check.
// Returns nil if the index is reachable, or a descriptive error otherwise.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if err := p.backend.Ping(ctx); err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}
	return nil
}

// embedProber is satisfied by any embedder that can embed a single text.
type embedProber interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedderPinger probes the embedding backend by embedding a minimal text.
// The probe costs one tiny embed call per readiness check.
type EmbedderPinger struct {
	// embedder is the embedding backend to probe.
	embedder embedProber
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e embedProber) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a single short text to confirm the backend responds.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vector, err := p.embedder.Embed(ctx, "ping")
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vector) == 0 {
		return fmt.Errorf("embed returned an empty vector")
	}
	return nil
}
