package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/config"
	"github.com/r4ven-labs/ragpipe/internal/generator"
	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/provider"
	"github.com/r4ven-labs/ragpipe/internal/rag"
	"github.com/r4ven-labs/ragpipe/internal/telemetry"
)

// NewAskCmd constructs the `ragpipe ask` command, which runs a single
// question through the full pipeline and prints the grounded answer.
func NewAskCmd() *cobra.Command {
	var topK int
	var threshold float64
	var showSources bool
	var showTimings bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question grounded in the ingested documents",
		Long: `Run a single question through the retrieval-augmented pipeline.

The question is embedded, the most similar document chunks are retrieved
from the vector index, and the model generates an answer using only that
retrieved context.

Examples:
  ragpipe ask "what is our refund policy?"
  ragpipe ask --top-k 3 --threshold 0.7 "how do I rotate the API keys?"
  ragpipe ask --sources --timings "what changed in the 2.0 release?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			emb, err := buildEmbedder(log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			gateway, _, closeIndex, err := buildGateway(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeIndex()

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			gen := generator.New(chatModel, string(providerCfg.Backend), providerCfg.Model, telemetry.OrNop(nil))

			defaultTopK, defaultThreshold := config.RetrievalFromEnv()
			service := rag.NewService(emb, gateway, gen, rag.Options{
				TopK:      defaultTopK,
				Threshold: defaultThreshold,
			}, nil)

			req := rag.Request{Query: strings.Join(args, " ")}
			if cmd.Flags().Changed("top-k") {
				req.MaxChunks = topK
			}
			if cmd.Flags().Changed("threshold") {
				req.SimilarityThreshold = &threshold
			}

			result, err := service.ProcessQuery(ctx, req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			printResult(result, showSources, showTimings)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of chunks to retrieve")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Minimum similarity score in [0, 1]")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the source chunks that grounded the answer")
	cmd.Flags().BoolVar(&showTimings, "timings", false, "Print the per-phase timing breakdown")

	return cmd
}

// printResult renders a query result for terminal consumption.
func printResult(result *rag.Result, showSources, showTimings bool) {
	answer := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	heading := color.New(color.FgCyan).SprintFunc()

	fmt.Println(answer(result.Answer))

	if showSources && len(result.Sources) > 0 {
		fmt.Printf("\n%s\n", heading("Sources:"))
		for i, src := range result.Sources {
			fmt.Printf("  %d. %s (chunk %d, score %.4f)\n", i+1, src.Source, src.ChunkIndex, src.SimilarityScore)
			fmt.Printf("     %s\n", dim(src.TextPreview))
		}
	}

	if showTimings {
		fmt.Printf("\n%s\n", heading("Timings:"))
		fmt.Printf("  embedding      %8.1f ms\n", result.Performance.EmbeddingMS)
		fmt.Printf("  vector search  %8.1f ms\n", result.Performance.VectorSearchMS)
		fmt.Printf("  generation     %8.1f ms\n", result.Performance.LLMGenerationMS)
		fmt.Printf("  total          %8.1f ms\n", result.Performance.TotalMS)
	}

	if !showSources {
		fmt.Printf("\n%s\n", dim(fmt.Sprintf("(%d chunks, %.0f ms — use --sources for details)", result.ChunksFound, result.ProcessingTimeMS)))
	}
}
