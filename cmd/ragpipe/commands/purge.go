package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/logging"
)

// NewPurgeCmd constructs the `ragpipe purge` command, which removes a
// previously ingested document's chunks from the vector index.
func NewPurgeCmd() *cobra.Command {
	var source string
	var listSources bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove an ingested document from the vector index",
		Long: `Delete every chunk of a previously ingested document from the vector
index and drop its entries from the local ingestion manifest.

Chunk keys are looked up in the manifest (~/.ragpipe/manifest.db), so purge
only works for documents ingested on this machine with the manifest enabled.

Examples:
  ragpipe purge --list
  ragpipe purge --source guides/onboarding.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			ledger, closeLedger, err := openManifest(log)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			defer closeLedger()
			if ledger == nil {
				return fmt.Errorf("purge: manifest is disabled — nothing to purge from")
			}

			if listSources {
				summaries, err := ledger.Sources(ctx)
				if err != nil {
					return fmt.Errorf("purge: %w", err)
				}
				if len(summaries) == 0 {
					fmt.Println("no ingested documents recorded")
					return nil
				}
				for _, s := range summaries {
					fmt.Printf("%s\t%d chunks\tingested %s\n", s.Source, s.Chunks, s.IngestedAt.Format(time.RFC3339))
				}
				return nil
			}

			if source == "" {
				return fmt.Errorf("purge: --source is required (or use --list)")
			}

			keys, err := ledger.KeysForSource(ctx, source)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			if len(keys) == 0 {
				return fmt.Errorf("purge: no chunks recorded for %s", source)
			}

			gateway, _, closeIndex, err := buildGateway(ctx, log)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			defer closeIndex()

			deleted, err := gateway.Delete(ctx, keys)
			if err != nil {
				return fmt.Errorf("purge: deleted %d of %d chunks: %w", deleted, len(keys), err)
			}

			if err := ledger.DeleteSource(ctx, source); err != nil {
				return fmt.Errorf("purge: index cleaned but manifest update failed: %w", err)
			}

			log.Info("purge complete",
				slog.String("source", source),
				slog.Int("chunks", deleted),
			)
			fmt.Printf("purged %s (%d chunks)\n", source, deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source document path to purge (as recorded at ingest time)")
	cmd.Flags().BoolVarP(&listSources, "list", "l", false, "List ingested documents instead of purging")

	return cmd
}
