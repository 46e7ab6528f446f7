// Package ingestion implements the document ingestion pipeline.
// It walks a directory of text documents, chunks each file with overlap,
// embeds every chunk, and upserts the results into the vector index,
// recording the chunk keys in the ingestion ledger. This pipeline is
// invoked by the `ragpipe ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/r4ven-labs/ragpipe/internal/manifest"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// Embedder converts one chunk of text into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Upserter stores embedded chunks in the vector index.
type Upserter interface {
	Upsert(ctx context.Context, records []vectorindex.Record) (int, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 800 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive
	// chunks. Defaults to 100 if zero.
	ChunkOverlap int
}

// Report summarizes one ingestion run.
type Report struct {
	// Source is the document identifier (path relative to the ingest root).
	Source string
	// Chunks is the number of chunks the document produced.
	Chunks int
	// Uploaded is the number of chunks stored in the vector index.
	Uploaded int
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for a set of
// documents.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder Embedder

	// index persists the embedded chunks.
	index Upserter

	// ledger records ingested chunk keys per source. May be nil, in which
	// case sources cannot be listed or purged later.
	ledger manifest.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder Embedder, index Upserter, ledger manifest.Store, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		ledger:   ledger,
		cfg:      cfg,
	}, nil
}

// ListDocuments walks root and returns the relative paths of every .txt and
// .md file, sorted by filepath.WalkDir order. Callers drive per-file
// progress reporting off this list.
func ListDocuments(root string) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			docs = append(docs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}
	return docs, nil
}

// IngestDirectory ingests every .txt and .md file under root. Files are
// processed sequentially; the first error aborts the run. Progress is
// reported via the optional progress callback.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string, progress func(msg string)) ([]Report, error) {
	docs, err := ListDocuments(root)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(docs))
	for _, doc := range docs {
		report, err := p.IngestFile(ctx, root, doc, progress)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// IngestFile ingests a single document. source is the path relative to root
// and doubles as the document identifier in chunk metadata and the ledger.
func (p *Pipeline) IngestFile(ctx context.Context, root, source string, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}

	raw, err := os.ReadFile(filepath.Join(root, source))
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", source, err)
	}

	chunks := p.chunk(string(raw))
	if len(chunks) == 0 {
		progress(fmt.Sprintf("skipping %s: no content", source))
		return &Report{Source: source}, nil
	}
	progress(fmt.Sprintf("chunked %s into %d chunks", source, len(chunks)))

	ingestedAt := time.Now().UTC().Format(time.RFC3339)
	records := make([]vectorindex.Record, 0, len(chunks))
	entries := make([]manifest.Chunk, 0, len(chunks))
	for i, text := range chunks {
		embedding, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed %s chunk %d: %w", source, i, err)
		}

		key := chunkKey(source, i)
		records = append(records, vectorindex.Record{
			Key:    key,
			Values: embedding,
			Metadata: map[string]any{
				"source":       source,
				"chunk_index":  i,
				"total_chunks": len(chunks),
				"file_name":    filepath.Base(source),
				"ingested_at":  ingestedAt,
				"text_length":  utf8.RuneCountInString(text),
				"source_text":  text,
			},
		})
		entries = append(entries, manifest.Chunk{
			Key:        key,
			Source:     source,
			ChunkIndex: i,
		})
	}

	uploaded, err := p.index.Upsert(ctx, records)
	if err != nil {
		return &Report{Source: source, Chunks: len(chunks), Uploaded: uploaded},
			fmt.Errorf("ingestion: upsert %s: %w", source, err)
	}

	if p.ledger != nil {
		if err := p.ledger.RecordChunks(ctx, entries); err != nil {
			return &Report{Source: source, Chunks: len(chunks), Uploaded: uploaded}, err
		}
	}

	progress(fmt.Sprintf("ingested %d chunks from %s", uploaded, source))
	return &Report{Source: source, Chunks: len(chunks), Uploaded: uploaded}, nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
// Boundaries are counted in runes, never bytes, so multi-byte text is
// never split mid-character.
func (p *Pipeline) chunk(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// chunkKey generates a deterministic key for a document chunk based on its
// source path and chunk index. The hash is rendered in UUID form because
// the vector index accepts only UUID point identifiers; re-ingesting the
// same document overwrites its previous chunks in place.
func chunkKey(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
