// handlers_health.go - Health check handlers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	backend Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, backend Pinger) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		backend: backend,
	}
}

type backendStatus struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// HandleHealth returns server health status. The companion server is healthy
// even when the backend is not; the backend state is reported alongside.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}

	if h.backend != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		status := backendStatus{URL: h.backend.BaseURL(), Reachable: true}
		if err := h.backend.Health(ctx); err != nil {
			status.Reachable = false
			status.Error = err.Error()
		}
		resp["backend"] = status
	}

	return c.JSON(http.StatusOK, resp)
}
