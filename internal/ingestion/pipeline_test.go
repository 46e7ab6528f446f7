package ingestion

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/r4ven-labs/ragpipe/internal/manifest"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// byteEmbedder derives a small deterministic vector from the text content,
// so identical texts always embed identically.
type byteEmbedder struct {
	calls int
}

func (e *byteEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls++
	var sum float64
	for _, b := range []byte(text) {
		sum += float64(b)
	}
	return []float64{sum, float64(len(text)), 1}, nil
}

// memoryBackend is an in-process vector index computing real cosine distance.
type memoryBackend struct {
	vectors []vectorindex.Vector
}

func (m *memoryBackend) Put(_ context.Context, vectors []vectorindex.Vector) error {
	m.vectors = append(m.vectors, vectors...)
	return nil
}

func (m *memoryBackend) Query(_ context.Context, query []float32, topK int, _ map[string]any) ([]vectorindex.RawResult, error) {
	results := make([]vectorindex.RawResult, 0, len(m.vectors))
	for _, v := range m.vectors {
		results = append(results, vectorindex.RawResult{
			Key:      v.Key,
			Distance: 1 - cosine(query, v.Data),
			Metadata: v.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *memoryBackend) Delete(_ context.Context, keys []string) error {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	kept := m.vectors[:0]
	for _, v := range m.vectors {
		if !drop[v.Key] {
			kept = append(kept, v)
		}
	}
	m.vectors = kept
	return nil
}

func (m *memoryBackend) Stats(context.Context) (vectorindex.Stats, error) {
	return vectorindex.Stats{TotalVectors: uint64(len(m.vectors)), Status: "ok"}, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *memoryBackend, *manifest.SQLiteStore) {
	t.Helper()
	backend := &memoryBackend{}
	gateway, err := vectorindex.NewGateway(backend, vectorindex.Config{Dimension: 3})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	ledger, err := manifest.Open(":memory:")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	p, err := NewPipeline(&byteEmbedder{}, gateway, ledger, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, backend, ledger
}

func TestIngestFile_ChunkingAndMetadata(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// 1700 chars with size 800 / overlap 100 → starts at 0, 700, 1400 → 3 chunks.
	writeDoc(t, dir, "long.txt", strings.Repeat("a", 1700))

	p, backend, _ := newTestPipeline(t, &Config{ChunkSize: 800, ChunkOverlap: 100})
	report, err := p.IngestFile(context.Background(), dir, "long.txt", nil)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if report.Chunks != 3 || report.Uploaded != 3 {
		t.Errorf("report = %+v, want 3 chunks uploaded", report)
	}
	if len(backend.vectors) != 3 {
		t.Fatalf("stored %d vectors, want 3", len(backend.vectors))
	}

	md := backend.vectors[0].Metadata
	if md["source"] != "long.txt" {
		t.Errorf("source = %v", md["source"])
	}
	if md["chunk_index"] != 0 || md["total_chunks"] != 3 {
		t.Errorf("chunk_index/total_chunks = %v/%v", md["chunk_index"], md["total_chunks"])
	}
	if md["file_name"] != "long.txt" {
		t.Errorf("file_name = %v", md["file_name"])
	}
	if md["text_length"] != 800 {
		t.Errorf("text_length = %v, want 800", md["text_length"])
	}
	if md["ingested_at"] == "" {
		t.Error("ingested_at is empty")
	}
	if len(md["source_text"].(string)) != 800 {
		t.Errorf("source_text length = %d, want 800", len(md["source_text"].(string)))
	}
}

func TestIngestFile_MultiByteChunking(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// 20 three-byte runes with size 10 / overlap 2 → starts at 0, 8, 16 → 3 chunks.
	writeDoc(t, dir, "uni.txt", strings.Repeat("☃", 20))

	p, backend, _ := newTestPipeline(t, &Config{ChunkSize: 10, ChunkOverlap: 2})
	report, err := p.IngestFile(context.Background(), dir, "uni.txt", nil)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if report.Chunks != 3 {
		t.Fatalf("chunks = %d, want 3", report.Chunks)
	}

	wantRunes := []int{10, 10, 4}
	for i, v := range backend.vectors {
		text := v.Metadata["source_text"].(string)
		if !utf8.ValidString(text) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(text); n != wantRunes[i] {
			t.Errorf("chunk %d runes = %d, want %d", i, n, wantRunes[i])
		}
		if v.Metadata["text_length"] != wantRunes[i] {
			t.Errorf("chunk %d text_length = %v, want %d", i, v.Metadata["text_length"], wantRunes[i])
		}
	}
}

func TestIngestFile_DeterministicKeys(t *testing.T) {
	t.Parallel()
	if chunkKey("docs/a.md", 0) != chunkKey("docs/a.md", 0) {
		t.Error("same source and index produced different keys")
	}
	if chunkKey("docs/a.md", 0) == chunkKey("docs/a.md", 1) {
		t.Error("different indices produced the same key")
	}
	// Keys must be UUID-shaped: 8-4-4-4-12 hex groups.
	key := chunkKey("docs/a.md", 0)
	parts := strings.Split(key, "-")
	if len(parts) != 5 {
		t.Fatalf("key %q is not UUID-shaped", key)
	}
	for i, want := range []int{8, 4, 4, 4, 12} {
		if len(parts[i]) != want {
			t.Errorf("key group %d length = %d, want %d (%q)", i, len(parts[i]), want, key)
		}
	}
}

func TestIngestFile_RecordsLedger(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", strings.Repeat("b", 900))

	p, _, ledger := newTestPipeline(t, &Config{ChunkSize: 800, ChunkOverlap: 100})
	if _, err := p.IngestFile(context.Background(), dir, "doc.md", nil); err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}

	keys, err := ledger.KeysForSource(context.Background(), "doc.md")
	if err != nil {
		t.Fatalf("KeysForSource() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ledger keys = %d, want 2", len(keys))
	}
	if keys[0] != chunkKey("doc.md", 0) {
		t.Errorf("ledger key mismatch: %q", keys[0])
	}
}

func TestIngestDirectory_WalksSupportedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha document")
	writeDoc(t, dir, "nested/b.md", "bravo document")
	writeDoc(t, dir, "ignored.pdf", "binary junk")

	p, backend, _ := newTestPipeline(t, nil)
	reports, err := p.IngestDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2 (pdf skipped)", len(reports))
	}
	if len(backend.vectors) != 2 {
		t.Errorf("stored %d vectors, want 2", len(backend.vectors))
	}
}

func TestIngestThenQuery_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	const text = "The sky is blue."
	writeDoc(t, dir, "sky.txt", text)

	backend := &memoryBackend{}
	gateway, err := vectorindex.NewGateway(backend, vectorindex.Config{Dimension: 3})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	emb := &byteEmbedder{}
	p, err := NewPipeline(emb, gateway, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.IngestFile(context.Background(), dir, "sky.txt", nil); err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}

	// Query with the identical text — cosine distance 0, similarity 1.
	embedding, err := emb.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	matches, err := gateway.Query(context.Background(), embedding, 6, 0.5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if math.Abs(matches[0].Score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", matches[0].Score)
	}
	if matches[0].Metadata["source_text"] != text {
		t.Errorf("source_text = %v, want the ingested chunk", matches[0].Metadata["source_text"])
	}
}

func TestIngestFile_EmptyFileSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "empty.txt", "   \n  ")

	p, backend, _ := newTestPipeline(t, nil)
	report, err := p.IngestFile(context.Background(), dir, "empty.txt", nil)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if report.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", report.Chunks)
	}
	if len(backend.vectors) != 0 {
		t.Errorf("stored %d vectors, want 0", len(backend.vectors))
	}
}
