// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/parser"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
	}
}

// HandleHealth returns server health status and the log formats it reads
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	var formats []string
	for _, p := range parser.GetGlobalRegistry().Parsers() {
		formats = append(formats, p.Name())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"parsers": formats,
	})
}
