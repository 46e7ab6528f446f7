package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/config"
	"github.com/r4ven-labs/ragpipe/internal/ingestion"
	"github.com/r4ven-labs/ragpipe/internal/logging"
)

// NewIngestCmd constructs the `ragpipe ingest` command, which chunks, embeds,
// and indexes a directory of documents into the vector store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into the vector index",
		Long: `Chunk, embed, and index plain-text (.txt) and Markdown (.md) documents
from a directory into the Qdrant vector store.

Each document is split into overlapping chunks, every chunk is embedded,
and the vectors are upserted in batches. Chunk keys are derived from the
source path and chunk index, so re-ingesting a document overwrites its
previous chunks in place.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: ragpipe-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure, bedrock (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  ragpipe ingest --dir ./docs
  CHUNK_SIZE=400 CHUNK_OVERLAP=50 ragpipe ingest --dir ./kb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if dir == "" {
				return fmt.Errorf("ingest: --dir is required")
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("ingest: %s is not a readable directory", dir)
			}

			emb, err := buildEmbedder(log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			gateway, _, closeIndex, err := buildGateway(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeIndex()

			ledger, closeLedger, err := openManifest(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeLedger()

			chunkSize, chunkOverlap := config.ChunkingFromEnv()
			pipeline, err := ingestion.NewPipeline(emb, gateway, ledger, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			documents, err := ingestion.ListDocuments(dir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(documents) == 0 {
				return fmt.Errorf("ingest: no .txt or .md documents found under %s", dir)
			}

			log.Info("starting ingestion",
				slog.String("dir", dir),
				slog.Int("documents", len(documents)),
				slog.Int("chunk_size", chunkSize),
				slog.Int("chunk_overlap", chunkOverlap),
			)

			bar := newIngestBar(len(documents), quiet)

			var totalChunks, totalUploaded int
			for _, source := range documents {
				report, err := pipeline.IngestFile(ctx, dir, source, nil)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", source, err)
				}
				if report != nil {
					totalChunks += report.Chunks
					totalUploaded += report.Uploaded
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			log.Info("ingestion complete",
				slog.Int("documents", len(documents)),
				slog.Int("chunks", totalChunks),
				slog.Int("uploaded", totalUploaded),
			)
			fmt.Printf("ingested %d documents (%d chunks)\n", len(documents), totalUploaded)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory containing .txt/.md documents to ingest")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the progress bar")

	return cmd
}

// newIngestBar builds the per-document progress bar, or nil when quiet.
func newIngestBar(total int, quiet bool) *progressbar.ProgressBar {
	if quiet || total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
