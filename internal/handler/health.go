package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg      *config.Config
	resolver *config.Resolver
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, r *config.Resolver, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, resolver: r, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns service status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"public_url":   h.resolver.BaseURL(),
		"internal_url": h.resolver.InternalURL(),
		"relaxed_tls":  h.resolver.RelaxedTLS(),
		"cache_driver": h.cfg.Cache.Driver,
	})
}
