package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// statser reports vector index statistics. *vectorindex.Gateway satisfies
// it; tests inject a fake.
type statser interface {
	Stats(ctx context.Context) (vectorindex.Stats, error)
}

// NewStatsCmd constructs the `ragpipe stats` command, which prints vector
// index statistics as JSON.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print vector index statistics",
		Long: `Report the vector index state as JSON: total vectors, configured
embedding dimension, and availability status.

Statistics are best-effort: when the index cannot report them the command
still succeeds and prints a placeholder with status "unavailable".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			gateway, _, closeIndex, err := buildGateway(ctx, log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer closeIndex()

			return writeStats(ctx, os.Stdout, log, gateway)
		},
	}
}

// writeStats prints the index statistics as indented JSON. Statistics are
// best-effort: a failing index still yields the degraded placeholder with
// a warning in the log, never an error to the caller.
func writeStats(ctx context.Context, w io.Writer, log *slog.Logger, gateway statser) error {
	stats, err := gateway.Stats(ctx)
	if err != nil {
		log.Warn("index stats unavailable", slog.Any("error", err))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
