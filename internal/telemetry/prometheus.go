package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink implements Sink on top of a Prometheus registry.
// A single instance is created at startup and shared by every component;
// tests inject a fresh prometheus.Registry to stay hermetic.
type PrometheusSink struct {
	// operationDuration records model/index call latency, partitioned by
	// the upstream system, the model identifier, and the logical operation
	// (embeddings, chat, vector_query).
	operationDuration *prometheus.HistogramVec

	// tokenUsage counts tokens consumed and produced per model operation.
	// Embedding input counts are word-based estimates, not exact.
	tokenUsage *prometheus.CounterVec

	// chunksRetrieved records the number of chunks each similarity search
	// returned after threshold filtering.
	chunksRetrieved prometheus.Histogram
}

// NewPrometheusSink registers the pipeline metrics against reg and returns
// the populated sink. promauto.With(reg) is used so each call registers
// into the provided registry rather than the global default.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)

	return &PrometheusSink{
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "genai",
			Name:      "operation_duration_seconds",
			Help:      "Wall-clock duration of model and vector index operations.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"system", "model", "operation"}),

		tokenUsage: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "genai",
			Name:      "token_usage_total",
			Help:      "Tokens consumed and produced per model operation, partitioned by token type.",
		}, []string{"system", "model", "operation", "token_type"}),

		chunksRetrieved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "rag",
			Name:      "chunks_retrieved",
			Help:      "Number of chunks returned per similarity search after threshold filtering.",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 12, 16, 24, 32},
		}),
	}
}

// RecordOperationDuration records the wall-clock duration of one operation.
func (s *PrometheusSink) RecordOperationDuration(system, model, operation string, d time.Duration) {
	s.operationDuration.WithLabelValues(system, model, operation).Observe(d.Seconds())
}

// RecordTokenUsage adds n tokens to the usage counter.
func (s *PrometheusSink) RecordTokenUsage(system, model, operation string, tt TokenType, n int) {
	if n <= 0 {
		return
	}
	s.tokenUsage.WithLabelValues(system, model, operation, string(tt)).Add(float64(n))
}

// RecordChunksRetrieved records the chunk count of one similarity search.
func (s *PrometheusSink) RecordChunksRetrieved(found int) {
	s.chunksRetrieved.Observe(float64(found))
}
