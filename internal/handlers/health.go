package handlers

import (
	"net/http"
	"time"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/services"
)

var startTime = time.Now()

// HealthHandlers serves liveness, readiness, and the public status endpoint.
type HealthHandlers struct {
	system services.SystemService
	now    func() time.Time
}

// NewHealthHandlers constructs health handlers. The system service may be nil,
// in which case readiness degrades to a liveness check.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system, now: time.Now}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Readyz runs the dependency probes and reports 503 when any is failing hard.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"detail":  check.Detail,
			"latency": check.Latency.String(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	writeJSONResponse(w, status, map[string]any{
		"status":      string(report.Status),
		"checks":      checks,
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

// Health is the public status endpoint the frontend polls.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	h.Healthz(w, r)
}
