package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/model"
	"portal-edge/internal/service"
)

const (
	revalidateSecretHeader = "X-Revalidate-Secret"
	maxRevalidateBody      = 64 << 10
)

type revalidateResponse struct {
	OK          bool     `json:"ok"`
	Revalidated []string `json:"revalidated"`
	Count       int      `json:"count"`
	Timestamp   string   `json:"timestamp"`
}

// RevalidateHandler serves the revalidation webhook.
type RevalidateHandler struct {
	revalidator *service.Revalidator
	logger      *slog.Logger
}

// NewRevalidateHandler creates a RevalidateHandler.
func NewRevalidateHandler(r *service.Revalidator, logger *slog.Logger) *RevalidateHandler {
	return &RevalidateHandler{
		revalidator: r,
		logger:      logger.With("component", "revalidate_handler"),
	}
}

// Handle processes POST /api/revalidate. The secret comes from the JSON body
// or, when the body has none, the X-Revalidate-Secret header.
func (h *RevalidateHandler) Handle(c echo.Context) error {
	var req model.RevalidationRequest
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxRevalidateBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"ok":    false,
			"error": "invalid JSON body",
		})
	}
	if req.Secret == "" {
		req.Secret = c.Request().Header.Get(revalidateSecretHeader)
	}

	res, err := h.revalidator.Revalidate(c.Request().Context(), req)
	if err != nil {
		var ae *service.AuthError
		if errors.As(err, &ae) {
			h.logger.Warn("revalidation rejected", "remote_ip", c.RealIP())
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"ok":    false,
				"error": "invalid secret",
			})
		}
		h.logger.Error("revalidation failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "revalidation failed",
		})
	}

	return c.JSON(http.StatusOK, revalidateResponse{
		OK:          true,
		Revalidated: res.Revalidated,
		Count:       res.Count,
		Timestamp:   res.Timestamp.Format(time.RFC3339),
	})
}
