package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ReadinessCheck reports a dependency as down by returning an error.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	service string
	checks  []ReadinessCheck
}

func NewHealthHandler(service string, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   h.service,
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	httpStatus := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			results[c.Name] = "down"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"service":   h.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}
