package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/r4ven-labs/ragpipe/internal/embedder"
	"github.com/r4ven-labs/ragpipe/internal/manifest"
	"github.com/r4ven-labs/ragpipe/internal/telemetry"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// buildGateway connects to Qdrant from environment configuration and wraps it
// in the vector index gateway. The returned cleanup func closes the gRPC
// connection and must be called when the command finishes.
func buildGateway(ctx context.Context, log *slog.Logger) (*vectorindex.Gateway, *vectorindex.QdrantBackend, func(), error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "ragpipe-docs")
	dimension := getEnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(embedder.ResolveBackend()))

	// Reject a bad metric before dialing: the gateway's similarity
	// conversion only holds for cosine distance.
	metric := getEnvOrDefault("DISTANCE_METRIC", "cosine")
	if metric != "cosine" {
		return nil, nil, nil, fmt.Errorf("unsupported DISTANCE_METRIC %q: only cosine is supported", metric)
	}

	backend, err := vectorindex.NewQdrantBackend(ctx, &vectorindex.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		Dimension:  dimension,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	gateway, err := vectorindex.NewGateway(backend, vectorindex.Config{
		DistanceMetric: metric,
		Dimension:      dimension,
	})
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	log.Info("vector index ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
		slog.Int("dimension", dimension),
	)

	return gateway, backend, func() { _ = backend.Close() }, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from environment variables, instrumented with the given sink.
func buildEmbedder(log *slog.Logger, sink telemetry.Sink) (embedder.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embedder.ResolveBackend()),
		slog.String("model", emb.Model()),
	)

	return embedder.WithTelemetry(emb, embedder.ResolveBackend(), sink), nil
}

// openManifest opens the ingestion manifest database. RAGPIPE_MANIFEST_DB
// overrides the default path (~/.ragpipe/manifest.db); the value "disabled"
// turns the manifest off, in which case (nil, nil, nil) is returned.
func openManifest(log *slog.Logger) (manifest.Store, func(), error) {
	path := os.Getenv("RAGPIPE_MANIFEST_DB")
	if path == "disabled" {
		log.Info("manifest: disabled via RAGPIPE_MANIFEST_DB=disabled")
		return nil, func() {}, nil
	}
	if path == "" {
		var err error
		path, err = manifest.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("manifest: could not resolve default DB path: %w", err)
		}
	}

	store, err := manifest.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: failed to open %s: %w", path, err)
	}
	log.Info("manifest: store opened", slog.String("path", path))

	return store, func() { _ = store.Close() }, nil
}

// getEnvOrDefault returns the value of key, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
