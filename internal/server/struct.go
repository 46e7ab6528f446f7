package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r4ven-labs/ragpipe/internal/rag"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// maxQueryLength is the longest query the API accepts, in bytes.
const maxQueryLength = 1000

// maxChunksCap bounds the per-request max_chunks override.
const maxChunksCap = 20

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry backing /metrics. If nil, a fresh
	// registry is created.
	Registry *prometheus.Registry
}

// queryService is the interface handleQuery and handleHealth call.
// *rag.Service satisfies it; tests inject a fake.
type queryService interface {
	ProcessQuery(ctx context.Context, req rag.Request) (*rag.Result, error)
	HealthCheck(ctx context.Context) (map[string]string, bool)
}

// statser is the interface handleStats calls for index statistics.
// *vectorindex.Gateway satisfies it; tests inject a fake.
type statser interface {
	Stats(ctx context.Context) (vectorindex.Stats, error)
}

// Server is the HTTP server that exposes the query pipeline.
type Server struct {
	// service runs the query pipeline and the composite health check.
	service queryService
	// stats reports vector index statistics. May be nil.
	stats statser
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// registry backs the /metrics endpoint.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// healthResponse is the JSON body returned by GET /api/health.
type healthResponse struct {
	// Status is "ok" when every component check passed, "degraded" otherwise.
	Status string `json:"status"`
	// Components maps each dependency to "healthy" or "unhealthy".
	Components map[string]string `json:"components"`
}
