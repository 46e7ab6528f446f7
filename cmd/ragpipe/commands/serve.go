package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/r4ven-labs/ragpipe/internal/config"
	"github.com/r4ven-labs/ragpipe/internal/generator"
	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/provider"
	"github.com/r4ven-labs/ragpipe/internal/rag"
	"github.com/r4ven-labs/ragpipe/internal/server"
	"github.com/r4ven-labs/ragpipe/internal/telemetry"
)

// NewServeCmd constructs the `ragpipe serve` command, which starts the HTTP
// server exposing the query pipeline as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragpipe HTTP server",
		Long: `Start the ragpipe HTTP server on localhost.

The server exposes POST /api/query for retrieval-augmented question
answering, GET /api/health and /api/ready for probes, GET /api/stats for
vector index statistics, and GET /metrics for Prometheus scraping.

Examples:
  ragpipe serve
  ragpipe serve --port 9090
  MODEL_PROVIDER=openai ragpipe serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := telemetry.SetupTracing()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			registry := prometheus.NewRegistry()
			sink := telemetry.NewPrometheusSink(registry)

			emb, err := buildEmbedder(log, sink)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			gateway, backend, closeIndex, err := buildGateway(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeIndex()

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			gen := generator.New(chatModel, string(providerCfg.Backend), providerCfg.Model, sink)

			topK, threshold := config.RetrievalFromEnv()
			service := rag.NewService(emb, gateway, gen, rag.Options{
				TopK:      topK,
				Threshold: threshold,
			}, sink)

			service.RegisterProbe("vector_index", func(ctx context.Context) error {
				stats, err := gateway.Stats(ctx)
				if err != nil {
					return err
				}
				if stats.Status != "ok" {
					return fmt.Errorf("index status %q", stats.Status)
				}
				return nil
			})
			service.RegisterProbe("embedder", func(ctx context.Context) error {
				vec, err := emb.Embed(ctx, "ping")
				if err != nil {
					return err
				}
				if len(vec) == 0 {
					return fmt.Errorf("embedder returned an empty vector")
				}
				return nil
			})

			srv, err := server.New(service, gateway, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewIndexPinger(backend),
					server.NewEmbedderPinger(emb),
				},
				APIKey:   os.Getenv("RAGPIPE_API_KEY"),
				Registry: registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
