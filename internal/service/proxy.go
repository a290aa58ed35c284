// Package service implements the fetch, file proxy, revalidation and feed
// logic behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"portal-edge/internal/client"
	"portal-edge/internal/config"
	"portal-edge/internal/model"
)

// UploadKind selects the backend upload endpoint.
type UploadKind string

const (
	UploadFile  UploadKind = "file"
	UploadImage UploadKind = "image"
)

const (
	// noDeadline disables the whole-call timeout so long file streams are
	// not cut off; header latency is still bounded by the transport.
	noDeadline = -1

	// htmlSniffBytes bounds how much of an HTML error page is read for logging.
	htmlSniffBytes = 64 << 10
)

var (
	fileIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	countryCodePattern = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
)

// clientIPHeaders are checked in order for the caller address forwarded upstream.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-Ip",
	"Cf-Connecting-Ip",
	"True-Client-Ip",
}

// fileResponseHeaders are the only backend headers copied onto file responses.
var fileResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Disposition",
	"Cache-Control",
	"Etag",
	"Last-Modified",
}

// uploadResponseHeaders are the only backend headers copied onto upload responses.
var uploadResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
}

// extensionsByType covers the document types the portal serves; other types
// fall back to the mime table.
var extensionsByType = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/zip":  ".zip",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/webp":       ".webp",
	"text/plain":       ".txt",
	"application/json": ".json",
}

// DownloadRequest identifies a file download.
type DownloadRequest struct {
	FileID      string
	CountryCode string
	CountryID   string // from the country_id cookie, optional
	Token       string // from the token cookie, optional
	Header      http.Header
}

// StorageRequest identifies a stored asset.
type StorageRequest struct {
	Path      string // backend path without leading slash, e.g. storage/a.png
	RawQuery  string
	CountryID string
	Token     string
	Header    http.Header
}

// UploadRequest is a multipart upload to forward.
type UploadRequest struct {
	Kind          UploadKind
	Token         string
	CountryID     string
	ContentType   string
	ContentLength int64 // -1 when unknown
	Body          io.Reader
	Header        http.Header
}

// FileService forwards file, asset and upload requests to the backend.
type FileService struct {
	client     *client.BackendClient
	resolver   *config.Resolver
	authorizer *Authorizer
	cfg        *config.Config
	logger     *slog.Logger
}

// NewFileService creates a FileService.
func NewFileService(c *client.BackendClient, r *config.Resolver, a *Authorizer, cfg *config.Config, logger *slog.Logger) *FileService {
	return &FileService{
		client:     c,
		resolver:   r,
		authorizer: a,
		cfg:        cfg,
		logger:     logger.With("component", "file_service"),
	}
}

// Download validates req, fetches the file and returns it ready to stream.
// The caller is responsible for closing the response body.
func (s *FileService) Download(ctx context.Context, req DownloadRequest) (*model.ProxiedResponse, error) {
	if req.FileID == "" {
		return nil, &ValidationError{Field: "fileId", Reason: "required"}
	}
	if !fileIDPattern.MatchString(req.FileID) {
		return nil, &ValidationError{Field: "fileId", Reason: "malformed"}
	}
	if req.CountryCode == "" {
		return nil, &ValidationError{Field: "countryCode", Reason: "required"}
	}
	if !countryCodePattern.MatchString(req.CountryCode) {
		return nil, &ValidationError{Field: "countryCode", Reason: "malformed"}
	}

	rc := s.resolver.RequestContext(req.CountryCode, req.CountryID, req.Token)
	p := strings.NewReplacer(
		"{country}", url.PathEscape(rc.CountryCode),
		"{id}", url.PathEscape(req.FileID),
	).Replace(s.cfg.Backend.DownloadPath)

	header := s.resolver.Headers(rc)
	header.Set("Accept", "*/*")
	header.Set("X-Forwarded-For", ClientIP(req.Header))

	target := model.NewUpstreamTarget(s.resolver.InternalURL(), p, nil, header)
	resp, err := s.client.Fetch(ctx, http.MethodGet, target, nil, noDeadline)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", req.FileID, err)
	}

	if err := s.classify(resp, p); err != nil {
		return nil, err
	}

	out := s.fileResponse(resp)
	if out.Header.Get("Content-Disposition") == "" {
		name := "file-" + req.FileID + extensionFor(out.Header.Get("Content-Type"))
		out.Header.Set("Content-Disposition", disposition("attachment", name))
	}
	if out.Header.Get("Cache-Control") == "" {
		out.Header.Set("Cache-Control", "private, no-cache")
	}
	return out, nil
}

// Storage fetches a stored asset, forwarding the caller's token when present.
// The caller is responsible for closing the response body.
func (s *FileService) Storage(ctx context.Context, req StorageRequest) (*model.ProxiedResponse, error) {
	clean := strings.TrimPrefix(req.Path, "/")
	if clean == "" {
		return nil, &ValidationError{Field: "path", Reason: "required"}
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." || seg == "." {
			return nil, &ValidationError{Field: "path", Reason: "relative segments are not allowed"}
		}
	}
	query, err := url.ParseQuery(req.RawQuery)
	if err != nil {
		return nil, &ValidationError{Field: "query", Reason: "malformed"}
	}

	rc := s.resolver.RequestContext("", req.CountryID, req.Token)
	header := s.resolver.Headers(rc)
	header.Set("Accept", "*/*")
	header.Set("X-Forwarded-For", ClientIP(req.Header))

	target := model.NewUpstreamTarget(s.resolver.InternalURL(), "/"+clean, query, header)
	resp, err := s.client.Fetch(ctx, http.MethodGet, target, nil, noDeadline)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", clean, err)
	}

	if err := s.classify(resp, "/"+clean); err != nil {
		return nil, err
	}

	out := s.fileResponse(resp)
	if out.Header.Get("Content-Disposition") == "" {
		out.Header.Set("Content-Disposition", disposition("inline", path.Base(clean)))
	}
	if out.Header.Get("Cache-Control") == "" {
		if rc.AuthToken != "" {
			out.Header.Set("Cache-Control", "private, no-cache")
		} else {
			out.Header.Set("Cache-Control", s.cfg.Storage.CacheControl)
		}
	}
	return out, nil
}

// Upload checks the caller's permission and then streams the multipart body
// to the backend. No body bytes are sent before the check succeeds. The
// backend's JSON answer is passed through with its status.
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (*model.ProxiedResponse, error) {
	var p string
	switch req.Kind {
	case UploadFile:
		p = s.cfg.Backend.UploadFilePath
	case UploadImage:
		p = s.cfg.Backend.UploadImagePath
	default:
		return nil, &ValidationError{Field: "kind", Reason: "unknown upload kind"}
	}

	rc := s.resolver.RequestContext("", req.CountryID, req.Token)
	if rc.AuthToken == "" {
		return nil, &AuthError{Reason: "missing token"}
	}

	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		return nil, &ValidationError{Field: "Content-Type", Reason: "multipart/form-data required"}
	}

	if _, err := s.authorizer.Authorize(ctx, rc); err != nil {
		return nil, err
	}

	header := s.resolver.Headers(rc)
	header.Set("Content-Type", req.ContentType)
	if req.ContentLength >= 0 {
		header.Set("Content-Length", fmt.Sprint(req.ContentLength))
	}
	header.Set("X-Forwarded-For", ClientIP(req.Header))

	target := model.NewUpstreamTarget(s.resolver.InternalURL(), p, nil, header)
	resp, err := s.client.Fetch(ctx, http.MethodPost, target, req.Body, noDeadline)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", req.Kind, err)
	}

	out := &model.ProxiedResponse{
		StatusCode: resp.StatusCode,
		Header:     make(http.Header),
		Body:       resp.Body,
	}
	for _, key := range uploadResponseHeaders {
		if v := resp.Header.Values(key); len(v) > 0 {
			out.Header[key] = v
		}
	}
	if out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/json")
	}
	return out, nil
}

// classify rejects backend answers that must not reach the client as a file.
// On error the response body is closed.
func (s *FileService) classify(resp *model.ProxiedResponse, p string) error {
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return ErrFileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if isHTML(ct) {
		title := htmlTitle(resp.Body)
		_ = resp.Body.Close()
		s.logger.Warn("backend returned HTML for a file request",
			"path", p,
			"status", resp.StatusCode,
			"title", title,
		)
		return &UpstreamProtocolError{ContentType: ct, Title: title}
	}
	return nil
}

// isHTML reports whether a Content-Type names text/html, including headers
// with malformed parameters or several comma-separated types.
func isHTML(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err == nil || errors.Is(err, mime.ErrInvalidMediaParameter) {
		return mediaType == "text/html"
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "text/html")
}

func (s *FileService) fileResponse(resp *model.ProxiedResponse) *model.ProxiedResponse {
	out := &model.ProxiedResponse{
		StatusCode: resp.StatusCode,
		Header:     make(http.Header),
		Body:       resp.Body,
	}
	for _, key := range fileResponseHeaders {
		if v := resp.Header.Values(key); len(v) > 0 {
			out.Header[key] = v
		}
	}
	if out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/octet-stream")
	}
	return out
}

// ClientIP returns the caller address from the first proxy header present,
// or the loopback address.
func ClientIP(h http.Header) string {
	for _, key := range clientIPHeaders {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			continue
		}
		if first, _, found := strings.Cut(v, ","); found {
			v = strings.TrimSpace(first)
		}
		if v != "" {
			return v
		}
	}
	return "127.0.0.1"
}

// disposition formats a Content-Disposition value, falling back to the bare
// disposition type when the filename cannot be encoded.
func disposition(kind, filename string) string {
	if v := mime.FormatMediaType(kind, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return kind
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := extensionsByType[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// htmlTitle returns the <title> of an HTML page read from at most
// htmlSniffBytes of r.
func htmlTitle(r io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(r, htmlSniffBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
