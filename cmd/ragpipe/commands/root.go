// Package commands defines all Cobra CLI commands for the ragpipe binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/audit"
	"github.com/r4ven-labs/ragpipe/internal/config"
	"github.com/r4ven-labs/ragpipe/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragpipe",
		Short: "ragpipe — retrieval-augmented question answering over your documents",
		Long: `ragpipe is a local-first retrieval-augmented generation pipeline.

It ingests plain-text and Markdown documents into a Qdrant vector index and
answers natural language questions grounded in that corpus: each query is
embedded, the most similar chunks are retrieved, and an LLM generates an
answer from the retrieved context only.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragpipe/config.yaml).
See 'ragpipe --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragpipe/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewPurgeCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
