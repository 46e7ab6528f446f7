package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/faults"
	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/rag"
)

// handleQuery handles POST /api/query: it validates the request body, runs
// the pipeline, and returns the full result including sources and the
// per-phase timing breakdown.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req rag.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if msg := validateQueryRequest(&req); msg != "" {
		s.metrics.queryRequestsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	result, err := s.service.ProcessQuery(r.Context(), req)
	if err != nil {
		if errors.Is(err, faults.ErrValidation) {
			s.metrics.queryRequestsTotal.WithLabelValues("invalid").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.metrics.queryRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.queryDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		log.Error("query failed", slog.Any("error", err))
		http.Error(w, "query processing failed", http.StatusBadGateway)
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.queryDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// validateQueryRequest returns a client-facing message when the request is
// malformed, or empty when it is acceptable.
func validateQueryRequest(req *rag.Request) string {
	if strings.TrimSpace(req.Query) == "" {
		return "query is required"
	}
	if len(req.Query) > maxQueryLength {
		return "query exceeds maximum length of 1000 characters"
	}
	if req.MaxChunks < 0 || req.MaxChunks > maxChunksCap {
		return "max_chunks must be between 1 and 20"
	}
	if t := req.SimilarityThreshold; t != nil && (*t < 0 || *t > 1) {
		return "similarity_threshold must be between 0 and 1"
	}
	return ""
}

// handleStats handles GET /api/stats. Statistics are best-effort: a degraded
// placeholder is still returned with a 200 when the index cannot report.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.stats == nil {
		http.Error(w, "statistics not available", http.StatusNotFound)
		return
	}

	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		log.Warn("index stats unavailable", slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error("stats encode error", slog.Any("error", err))
	}
}
