package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/client"
	"portal-edge/internal/config"
)

const (
	defaultProbeTimeout = 5 * time.Second
	maxProbeTimeout     = 30 * time.Second
)

type probeResponse struct {
	OK            bool   `json:"ok"`
	URL           string `json:"url"`
	InternalFetch bool   `json:"internal_fetch"`
	Status        int    `json:"status,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// DebugHandler probes the internal backend through the same transport the
// fetches use.
type DebugHandler struct {
	client    *client.BackendClient
	resolver  *config.Resolver
	probePath string
	logger    *slog.Logger
}

// NewDebugHandler creates a DebugHandler.
func NewDebugHandler(c *client.BackendClient, r *config.Resolver, cfg *config.Config, logger *slog.Logger) *DebugHandler {
	return &DebugHandler{
		client:    c,
		resolver:  r,
		probePath: cfg.Debug.ProbePath,
		logger:    logger.With("component", "debug_handler"),
	}
}

// InternalFetch handles GET /api/debug/internal-fetch?timeout=5s.
func (h *DebugHandler) InternalFetch(c echo.Context) error {
	timeout := defaultProbeTimeout
	if raw := c.QueryParam("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid timeout"})
		}
		timeout = min(d, maxProbeTimeout)
	}

	target := h.resolver.InternalURL() + h.probePath
	res := probeResponse{
		URL:           target,
		InternalFetch: h.client.ShouldUseInternalFetch(target),
	}

	start := time.Now()
	resp, err := h.client.InternalFetch(c.Request().Context(), http.MethodGet, target,
		h.resolver.HeadersFor("", ""), nil, timeout)
	if err == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		res.Status = resp.StatusCode
		res.OK = resp.StatusCode >= 200 && resp.StatusCode <= 299
		if !res.OK {
			res.ErrorKind = string(client.KindStatus)
		}
	}
	res.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		var fe *client.FetchError
		if errors.As(err, &fe) {
			res.ErrorKind = string(fe.Kind)
		} else {
			res.ErrorKind = string(client.KindTransport)
		}
		res.Error = sanitizeError(err)
		h.logger.Warn("internal fetch probe failed", "url", target, "kind", res.ErrorKind, "err", res.Error)
	}

	return c.JSON(http.StatusOK, res)
}
