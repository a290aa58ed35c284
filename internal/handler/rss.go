package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/service"
)

// FeedHandler serves the RSS feed.
type FeedHandler struct {
	feed   *service.FeedGenerator
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(g *service.FeedGenerator, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		feed:   g,
		logger: logger.With("component", "feed_handler"),
	}
}

// Handle renders GET /rss.xml.
func (h *FeedHandler) Handle(c echo.Context) error {
	out, err := h.feed.Render(c.Request().Context())
	if err != nil {
		h.logger.Error("render feed", "err", err)
		return c.String(http.StatusInternalServerError, "feed unavailable")
	}

	c.Response().Header().Set("Cache-Control", h.feed.CacheControl())
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", out)
}
