// Package manifest provides a SQLite-backed ledger of ingested documents.
// Each ingested chunk is recorded with its vector key so sources can be
// listed and purged from the vector index later — the index itself offers
// no list-by-source operation.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Chunk is one ingested chunk's ledger entry.
type Chunk struct {
	// Key is the chunk's vector index key.
	Key string
	// Source is the originating document identifier.
	Source string
	// ChunkIndex is the chunk's position within the source document.
	ChunkIndex int
	// IngestedAt is when the chunk was recorded.
	IngestedAt time.Time
}

// SourceSummary aggregates the ledger per source document.
type SourceSummary struct {
	// Source is the document identifier.
	Source string `json:"source"`
	// Chunks is the number of chunks recorded for the source.
	Chunks int `json:"chunks"`
	// IngestedAt is the most recent ingestion time for the source.
	IngestedAt time.Time `json:"ingested_at"`
}

// Store persists the ingestion ledger. Implementations must be safe for
// concurrent use.
type Store interface {
	// RecordChunks replaces the ledger entries for the chunks' sources.
	RecordChunks(ctx context.Context, chunks []Chunk) error
	// KeysForSource returns every vector key recorded for the source.
	KeysForSource(ctx context.Context, source string) ([]string, error)
	// Sources returns a per-source summary of the ledger.
	Sources(ctx context.Context) ([]SourceSummary, error)
	// DeleteSource removes the ledger entries for the source.
	DeleteSource(ctx context.Context, source string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the ingestion ledger database.
// It resolves to ~/.ragpipe/manifest.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("manifest: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragpipe")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("manifest: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "manifest.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    key          TEXT    PRIMARY KEY,
    source       TEXT    NOT NULL,
    chunk_index  INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source
    ON chunks (source);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("manifest: migrate: %w", err)
	}
	return nil
}

// RecordChunks replaces the ledger entries for the chunks' sources. Existing
// entries for a re-ingested source are dropped first so the ledger never
// holds keys from a previous, shorter version of the document.
func (s *SQLiteStore) RecordChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: record: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	seen := make(map[string]bool)
	for _, c := range chunks {
		if !seen[c.Source] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, c.Source); err != nil {
				return fmt.Errorf("manifest: record: clear source %q: %w", c.Source, err)
			}
			seen[c.Source] = true
		}
	}

	const q = `INSERT OR REPLACE INTO chunks (key, source, chunk_index, ingested_at) VALUES (?, ?, ?, ?)`
	for _, c := range chunks {
		ts := c.IngestedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx, q, c.Key, c.Source, c.ChunkIndex, ts.Unix()); err != nil {
			return fmt.Errorf("manifest: record chunk %q: %w", c.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: record: commit: %w", err)
	}
	return nil
}

// KeysForSource returns every vector key recorded for the source, in chunk
// order.
func (s *SQLiteStore) KeysForSource(ctx context.Context, source string) ([]string, error) {
	const q = `SELECT key FROM chunks WHERE source = ? ORDER BY chunk_index ASC`
	rows, err := s.db.QueryContext(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("manifest: keys for %q: %w", source, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("manifest: keys scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: keys rows: %w", err)
	}
	return keys, nil
}

// Sources returns a per-source summary of the ledger, newest first.
func (s *SQLiteStore) Sources(ctx context.Context) ([]SourceSummary, error) {
	const q = `
SELECT source, COUNT(*), MAX(ingested_at)
FROM   chunks
GROUP  BY source
ORDER  BY MAX(ingested_at) DESC, source ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("manifest: sources: %w", err)
	}
	defer rows.Close()

	var summaries []SourceSummary
	for rows.Next() {
		var sum SourceSummary
		var ts int64
		if err := rows.Scan(&sum.Source, &sum.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("manifest: sources scan: %w", err)
		}
		sum.IngestedAt = time.Unix(ts, 0)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: sources rows: %w", err)
	}
	return summaries, nil
}

// DeleteSource removes the ledger entries for the source.
func (s *SQLiteStore) DeleteSource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("manifest: delete source %q: %w", source, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("manifest: close: %w", err)
	}
	return nil
}
