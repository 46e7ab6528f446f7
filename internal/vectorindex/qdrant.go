package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// Dimension is the embedding dimension stored in this collection.
	Dimension int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBackend implements Backend against a Qdrant instance.
//
// Qdrant reports cosine similarity s ∈ [-1, 1] for cosine collections; the
// gateway works in distance space, so this backend converts each result to
// distance d = 1 - s ∈ [0, 2] before handing it back.
type QdrantBackend struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this backend.
	cfg *QdrantConfig
}

// NewQdrantBackend creates a QdrantBackend, ensuring the target collection
// exists (creating it with cosine distance if necessary).
func NewQdrantBackend(ctx context.Context, cfg *QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	b := &QdrantBackend{client: client, cfg: cfg}
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return b, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.cfg.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", b.cfg.Collection, err)
	}

	return nil
}

// Put stores or updates one batch of vectors.
func (b *QdrantBackend) Put(ctx context.Context, vectors []Vector) error {
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(v.Key),
			Vectors: qdrant.NewVectors(v.Data...),
			Payload: qdrant.NewValueMap(v.Metadata),
		})
	}

	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Query returns the topK nearest vectors with distance and metadata.
func (b *QdrantBackend) Query(ctx context.Context, query []float32, topK int, filter map[string]any) ([]RawResult, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: b.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}

	points, err := b.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	results := make([]RawResult, 0, len(points))
	for _, p := range points {
		results = append(results, RawResult{
			Key: p.Id.GetUuid(),
			// Cosine similarity → cosine distance.
			Distance: float64(1 - p.Score),
			Metadata: payloadToMap(p.Payload),
		})
	}

	return results, nil
}

// Delete removes one batch of vectors by key.
func (b *QdrantBackend) Delete(ctx context.Context, keys []string) error {
	ids := make([]*qdrant.PointId, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, qdrant.NewIDUUID(k))
	}

	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.cfg.Collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Stats reports the collection's vector count.
func (b *QdrantBackend) Stats(ctx context.Context) (Stats, error) {
	info, err := b.client.GetCollectionInfo(ctx, b.cfg.Collection)
	if err != nil {
		return Stats{}, fmt.Errorf("qdrant: collection info failed: %w", err)
	}

	return Stats{
		TotalVectors: info.GetPointsCount(),
		Dimension:    b.cfg.Dimension,
		Status:       "ok",
	}, nil
}

// Ping calls the Qdrant HealthCheck RPC. Used by the readiness probe.
func (b *QdrantBackend) Ping(ctx context.Context) error {
	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// buildFilter converts a metadata filter mapping into a Qdrant filter with
// one Must condition per key. Unsupported value types are skipped — a
// looser filter returns extra candidates, which the caller's threshold and
// topK still bound.
func buildFilter(filter map[string]any) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		switch val := v.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(k, val))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(k, int64(val)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(k, val))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(k, val))
		}
	}
	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{Must: conditions}
}

// payloadToMap converts a Qdrant payload into a plain metadata mapping.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			md[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			md[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			md[k] = kind.BoolValue
		}
	}
	return md
}
