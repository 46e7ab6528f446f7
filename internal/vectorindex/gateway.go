package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/faults"
	"github.com/r4ven-labs/ragpipe/internal/logging"
)

// maxBatchSize is the hard upstream limit on vectors per put/delete call.
const maxBatchSize = 500

// maxUpsertAttempts is the total number of attempts per upsert batch when
// the backend reports rate limiting (1 initial + 2 retries).
const maxUpsertAttempts = 3

// baseRetryDelay is the backoff base: attempt n sleeps base × 2^n.
const baseRetryDelay = 1 * time.Second

// Backend is the transport interface to the remote vector index service.
// Implementations must be safe to call from multiple goroutines and must
// wrap throttling responses in [faults.ErrRateLimited] so the gateway can
// retry them.
type Backend interface {
	// Put stores or updates one batch of vectors (≤500).
	Put(ctx context.Context, vectors []Vector) error

	// Query returns the topK nearest vectors with distance and metadata,
	// optionally restricted by a metadata filter. Results are ordered by
	// ascending distance.
	Query(ctx context.Context, query []float32, topK int, filter map[string]any) ([]RawResult, error)

	// Delete removes one batch of vectors by key (≤500).
	Delete(ctx context.Context, keys []string) error

	// Stats reports index statistics.
	Stats(ctx context.Context) (Stats, error)
}

// Config holds the gateway settings.
type Config struct {
	// DistanceMetric is the index distance metric. Only "cosine" is
	// supported: the similarity conversion 1 - d/2 is metric-specific.
	DistanceMetric string

	// Dimension is the embedding dimension, echoed in degraded Stats.
	Dimension int
}

// Gateway wraps a Backend with batching, rate-limit backoff, float32
// coercion, and distance-to-similarity conversion. It holds only immutable
// configuration plus the backend handle and is safe for concurrent use.
type Gateway struct {
	// backend is the transport to the vector index service.
	backend Backend

	// cfg holds the resolved gateway configuration.
	cfg Config

	// sleep waits between upsert retry attempts. Overridden in tests to
	// capture backoff delays without waiting. The default respects
	// context cancellation so a cancelled caller is not held hostage by
	// a backoff window.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway constructs a Gateway over the given backend. It rejects any
// distance metric other than cosine — the similarity formula used by Query
// is only valid for cosine distance and must be revisited before another
// metric can be supported.
func NewGateway(backend Backend, cfg Config) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("vectorindex: backend must not be nil")
	}
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = "cosine"
	}
	if cfg.DistanceMetric != "cosine" {
		return nil, fmt.Errorf("vectorindex: unsupported distance metric %q — similarity conversion requires cosine", cfg.DistanceMetric)
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		sleep:   sleepCtx,
	}, nil
}

// Upsert stores records in the index in batches of at most 500.
// Rate-limit errors are retried per batch up to 3 attempts total with
// exponential backoff (1s, 2s); any other error, or retry exhaustion,
// aborts the upsert.
//
// Semantics on failure are best-effort partial: batches uploaded before
// the failing one stay in the index, and the returned count reflects them.
// Callers that need all-or-nothing must delete the returned keys
// themselves.
func (g *Gateway) Upsert(ctx context.Context, records []Record) (int, error) {
	log := logging.FromContext(ctx)

	vectors := make([]Vector, len(records))
	for i, r := range records {
		vectors[i] = Vector{
			Key:      r.Key,
			Data:     toFloat32(r.Values),
			Metadata: r.Metadata,
		}
	}

	uploaded := 0
	for start := 0; start < len(vectors); start += maxBatchSize {
		end := min(start+maxBatchSize, len(vectors))
		batch := vectors[start:end]

		if err := g.putWithRetry(ctx, batch, log); err != nil {
			return uploaded, fmt.Errorf("vectorindex: batch at offset %d: %w: %w", start, faults.ErrUpsert, err)
		}
		uploaded += len(batch)

		log.Debug("uploaded vector batch",
			slog.Int("size", len(batch)),
			slog.Int("uploaded", uploaded),
		)
	}

	return uploaded, nil
}

// putWithRetry sends one batch, retrying rate-limit errors with
// exponential backoff. Non-rate-limit errors fail immediately.
func (g *Gateway) putWithRetry(ctx context.Context, batch []Vector, log *slog.Logger) error {
	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = g.backend.Put(ctx, batch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, faults.ErrRateLimited) {
			return err
		}
		if attempt == maxUpsertAttempts-1 {
			break
		}

		delay := baseRetryDelay * (1 << attempt)
		log.Warn("rate limited, retrying batch",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Query submits a similarity search and returns matches at or above
// threshold, in the order received from the backend (which orders by
// ascending distance — no re-sorting happens here). The similarity score
// is 1 - distance/2, valid for cosine distance in [0, 2]. No retries.
func (g *Gateway) Query(ctx context.Context, embedding []float64, topK int, threshold float64, filter map[string]any) ([]Match, error) {
	start := time.Now()

	results, err := g.backend.Query(ctx, toFloat32(embedding), topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: %w: %w", faults.ErrVectorQuery, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		score := 1 - r.Distance/2
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			Key:      r.Key,
			Score:    score,
			Metadata: r.Metadata,
		})
	}

	logging.FromContext(ctx).Info("vector query completed",
		slog.Int("top_k", topK),
		slog.Int("response_size", len(results)),
		slog.Int("matches", len(matches)),
		slog.Float64("threshold", threshold),
		slog.Bool("has_filter", len(filter) > 0),
		slog.Duration("latency", time.Since(start)),
	)

	return matches, nil
}

// Delete removes records by key in batches of at most 500. The first batch
// failure aborts the remaining batches, so deletion may be partial; the
// returned count is the number of keys deleted before the failure.
func (g *Gateway) Delete(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += maxBatchSize {
		end := min(start+maxBatchSize, len(keys))
		batch := keys[start:end]

		if err := g.backend.Delete(ctx, batch); err != nil {
			return deleted, fmt.Errorf("vectorindex: batch at offset %d: %w: %w", start, faults.ErrDelete, err)
		}
		deleted += len(batch)
	}
	return deleted, nil
}

// Stats reports index statistics, best-effort. When the backend cannot
// report, a placeholder Stats with Status "unavailable" is returned
// together with the error; callers that only want degraded data may
// ignore the error. The placeholder depends only on the configuration
// passed at construction.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	stats, err := g.backend.Stats(ctx)
	if err != nil {
		return Stats{
			Dimension: g.cfg.Dimension,
			Status:    "unavailable",
		}, fmt.Errorf("vectorindex: stats: %w", err)
	}
	if stats.Dimension == 0 {
		stats.Dimension = g.cfg.Dimension
	}
	if stats.Status == "" {
		stats.Status = "ok"
	}
	return stats, nil
}

// toFloat32 narrows an embedding to the fixed 32-bit width the index
// stores, regardless of the input's native precision.
func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
