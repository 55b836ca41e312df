package handlers

import (
	"net/http"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck() error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func() error

func (f HealthCheckFunc) HealthCheck() error { return f() }

type HealthHandler struct {
	version string
	checks  map[string]HealthChecker
}

// NewHealthHandler creates a health handler over the named dependency checks
func NewHealthHandler(version string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// HealthResponse reports service and dependency status
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health reports whether the service and its dependencies are up
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		Dependencies: make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK

	for name, check := range h.checks {
		if err := check.HealthCheck(); err != nil {
			resp.Dependencies[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "ok"
	}

	respondWithJSON(w, code, resp)
}
