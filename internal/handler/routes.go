package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portal-edge/internal/config"
	"portal-edge/internal/metrics"
)

// Handlers groups the route handlers for registration.
type Handlers struct {
	Proxy      *ProxyHandler
	Revalidate *RevalidateHandler
	Feed       *FeedHandler
	Debug      *DebugHandler
	Health     *HealthHandler
}

// RegisterRoutes wires all route handlers onto the Echo instance. The debug
// probe is mounted only when enabled in config; metrics only when m is set and
// metrics are enabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, h Handlers) {
	e.GET("/healthz", h.Health.Healthz)
	e.GET("/proxy/status", h.Health.Status)

	e.GET("/api/download/:fileId", h.Proxy.Download)
	e.GET("/api/storage/*", h.Proxy.Storage)
	e.POST("/api/upload/file", h.Proxy.UploadFile)
	e.POST("/api/upload/image", h.Proxy.UploadImage)

	e.POST("/api/revalidate", h.Revalidate.Handle)
	e.GET("/rss.xml", h.Feed.Handle)

	if cfg.Debug.Enabled {
		e.GET("/api/debug/internal-fetch", h.Debug.InternalFetch)
	}

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
