package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/logging"
)

// Probe checks the health of one pipeline dependency.
type Probe func(ctx context.Context) error

// probeTimeout bounds each individual health probe.
const probeTimeout = 5 * time.Second

// RegisterProbe adds a named dependency check to the composite health check.
// Register probes during startup, before the service begins handling
// requests — registration is not synchronized with HealthCheck.
func (s *Service) RegisterProbe(name string, p Probe) {
	s.probes[name] = p
}

// HealthCheck runs every registered probe independently and reports each
// outcome as "healthy" or "unhealthy". The failure detail goes to the log,
// not the response. One failing dependency never masks the status of the
// others. The boolean is true only when every probe passed.
func (s *Service) HealthCheck(ctx context.Context) (map[string]string, bool) {
	log := logging.FromContext(ctx)

	statuses := make(map[string]string, len(s.probes))
	healthy := true

	for name, probe := range s.probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe(probeCtx)
		cancel()

		if err != nil {
			statuses[name] = "unhealthy"
			healthy = false
			log.Warn("health probe failed",
				slog.String("dependency", name),
				slog.Any("error", err),
			)
			continue
		}
		statuses[name] = "healthy"
	}

	return statuses, healthy
}
