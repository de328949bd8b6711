package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkTimeout bounds each dependency probe
const checkTimeout = 5 * time.Second

// Health statuses. Degraded means the assistant still answers queries but
// some optional capability (fallback classifier, job queue) is down.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// Check is one named dependency probe. Critical dependencies take the
// whole service to unhealthy; optional ones only degrade it.
type Check struct {
	Name     string
	Critical bool
	Probe    CheckFunc
}

// HealthHandler reports dependency health for the assistant
type HealthHandler struct {
	checks []Check
	logger *zap.Logger
}

// NewHealthHandler creates a health handler over the given checks
func NewHealthHandler(checks []Check, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthResponse is the GET /chat/health body
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /chat/health. It is unauthenticated; the response
// carries no data beyond per-dependency up/down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    HealthHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(h.checks)),
	}

	type outcome struct {
		name     string
		critical bool
		err      error
	}

	results := make([]outcome, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			results[i] = outcome{name: c.Name, critical: c.Critical, err: c.Probe(ctx)}
		}(i, c)
	}
	wg.Wait()

	for _, res := range results {
		if res.err == nil {
			resp.Checks[res.name] = HealthHealthy
			continue
		}
		h.logger.Warn("health_check_failed", zap.String("dependency", res.name), zap.Error(res.err))
		resp.Checks[res.name] = HealthUnhealthy
		if res.critical {
			resp.Status = HealthUnhealthy
		} else if resp.Status == HealthHealthy {
			resp.Status = HealthDegraded
		}
	}

	status := http.StatusOK
	if resp.Status == HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
