package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/config"
	"portal-edge/internal/model"
	"portal-edge/internal/service"
)

const (
	tokenCookie     = "token"
	countryIDCookie = "country_id"

	msgFileNotFound = "File not found"
	msgUpstream     = "تعذر جلب الملف من الخادم"
)

// secretPattern matches credentials in URLs or headers embedded in error messages.
var secretPattern = regexp.MustCompile(`(?i)(bearer\s+|token=|signature=|apikey=)[^&\s"]+`)

// ProxyHandler serves the download, storage and upload routes.
type ProxyHandler struct {
	service      *service.FileService
	errorMessage string
	logger       *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.FileService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:      svc,
		errorMessage: cfg.Site.ErrorMessage,
		logger:       logger.With("component", "proxy_handler"),
	}
}

// Download streams GET /api/download/:fileId.
func (h *ProxyHandler) Download(c echo.Context) error {
	req := c.Request()

	code := c.QueryParam("countryCode")
	if code == "" {
		code = c.QueryParam("country_code")
	}

	resp, err := h.service.Download(req.Context(), service.DownloadRequest{
		FileID:      c.Param("fileId"),
		CountryCode: code,
		CountryID:   cookieValue(c, countryIDCookie),
		Token:       cookieValue(c, tokenCookie),
		Header:      req.Header,
	})
	if err != nil {
		return h.mapFileError(c, err)
	}
	return h.stream(c, resp)
}

// Storage streams GET /api/storage/*.
func (h *ProxyHandler) Storage(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Storage(req.Context(), service.StorageRequest{
		Path:      c.Param("*"),
		RawQuery:  req.URL.RawQuery,
		CountryID: cookieValue(c, countryIDCookie),
		Token:     cookieValue(c, tokenCookie),
		Header:    req.Header,
	})
	if err != nil {
		return h.mapFileError(c, err)
	}
	return h.stream(c, resp)
}

// UploadFile handles POST /api/upload/file.
func (h *ProxyHandler) UploadFile(c echo.Context) error {
	return h.upload(c, service.UploadFile)
}

// UploadImage handles POST /api/upload/image.
func (h *ProxyHandler) UploadImage(c echo.Context) error {
	return h.upload(c, service.UploadImage)
}

func (h *ProxyHandler) upload(c echo.Context, kind service.UploadKind) error {
	req := c.Request()

	resp, err := h.service.Upload(req.Context(), service.UploadRequest{
		Kind:          kind,
		Token:         requestToken(c),
		CountryID:     cookieValue(c, countryIDCookie),
		ContentType:   req.Header.Get(echo.HeaderContentType),
		ContentLength: req.ContentLength,
		Body:          req.Body,
		Header:        req.Header,
	})
	if err != nil {
		return h.mapUploadError(c, err)
	}
	return h.stream(c, resp)
}

// stream writes the proxied response and copies its body to the client.
func (h *ProxyHandler) stream(c echo.Context, resp *model.ProxiedResponse) error {
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	// Headers are already sent; a failed copy leaves the client with a
	// truncated body and is only logged.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// mapFileError answers binary routes in plain text. Backend bodies are never
// forwarded.
func (h *ProxyHandler) mapFileError(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		se *service.UpstreamStatusError
		pe *service.UpstreamProtocolError
	)

	switch {
	case errors.As(err, &ve):
		return c.String(http.StatusBadRequest, ve.Error())
	case errors.Is(err, service.ErrFileNotFound):
		return c.String(http.StatusNotFound, msgFileNotFound)
	case errors.As(err, &se):
		h.logger.Warn("backend refused file request", "status", se.StatusCode, "path", c.Request().URL.Path)
		return c.String(se.StatusCode, msgUpstream)
	case errors.As(err, &pe):
		return c.String(http.StatusBadGateway, msgUpstream)
	}

	h.logger.Error("file proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)
	return c.String(http.StatusInternalServerError, h.errorMessage)
}

// mapUploadError answers upload routes in JSON.
func (h *ProxyHandler) mapUploadError(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		ae *service.AuthError
		pe *service.PermissionError
	)

	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.As(err, &ae):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "غير مصرح"})
	case errors.As(err, &pe):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "ليس لديك صلاحية رفع الملفات"})
	}

	h.logger.Error("upload error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": h.errorMessage})
}

// cookieValue returns the named cookie or empty string.
func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// requestToken prefers an explicit bearer token over the session cookie.
func requestToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, tok, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok
		}
	}
	return cookieValue(c, tokenCookie)
}

// sanitizeError redacts credentials from error messages that may contain backend URLs.
func sanitizeError(err error) string {
	return secretPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
