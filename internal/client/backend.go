// Package client provides the HTTP transport for calls to the content API.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portal-edge/internal/config"
	"portal-edge/internal/metrics"
	"portal-edge/internal/model"
)

const (
	transportSecure  = "secure"
	transportRelaxed = "relaxed"

	// maxRedirects matches the net/http default policy.
	maxRedirects = 10
)

// BackendClient sends requests to the content API. Requests to the internal
// API host use a transport without certificate verification when relaxed TLS
// is configured; every other request uses the verifying transport.
type BackendClient struct {
	secure         *http.Client
	relaxed        *http.Client // nil unless relaxed TLS is configured
	hostname       string
	defaultTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, resolver *config.Resolver, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second

	// No http.Client timeout: it would cut off long file streams. Header
	// latency is bounded by the transport, whole calls by InternalFetch.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Backend.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &BackendClient{
		secure:         &http.Client{Transport: transport},
		hostname:       resolver.Hostname(),
		defaultTimeout: timeout,
		logger:         logger.With("component", "backend_client"),
		metrics:        m,
	}

	if resolver.RelaxedTLS() {
		relaxed := transport.Clone()
		relaxed.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // scoped to the internal API host
		c.relaxed = &http.Client{Transport: relaxed, CheckRedirect: c.stayOnInternalHost}
		c.logger.Warn("relaxed TLS enabled for internal API host", "host", c.hostname)
	}

	return c
}

// stayOnInternalHost stops the relaxed client from following a redirect to
// any host other than the internal API host.
func (c *BackendClient) stayOnInternalHost(req *http.Request, via []*http.Request) error {
	if !strings.EqualFold(req.URL.Hostname(), c.hostname) {
		return fmt.Errorf("%w: %s", ErrRedirectOffHost, req.URL.Redacted())
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// ShouldUseInternalFetch reports whether rawURL targets the internal API host
// and relaxed TLS was requested for it.
func (c *BackendClient) ShouldUseInternalFetch(rawURL string) bool {
	if c.relaxed == nil || c.hostname == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), c.hostname)
}

// Do executes an HTTP request against the backend and returns the raw response.
// The caller is responsible for closing the response body.
func (c *BackendClient) Do(req *http.Request) (*model.ProxiedResponse, error) {
	hc, transport := c.secure, transportSecure
	if c.ShouldUseInternalFetch(req.URL.String()) {
		hc, transport = c.relaxed, transportRelaxed
		c.logger.Warn("relaxed TLS request",
			"host", req.URL.Host,
			"method", req.Method,
			"path", req.URL.Path,
		)
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
		"transport", transport,
	)

	start := time.Now()
	resp, err := hc.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxiedResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method, transport).Observe(duration)
	}

	if err != nil {
		return nil, classify(req.URL.Redacted(), err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, transport, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxiedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// InternalFetch executes a request and returns the response body as a stream.
// timeout bounds the whole call including the body read; zero means the
// configured backend timeout and a negative value means none. On deadline the
// call fails with KindTimeout. The caller must close the returned body.
func (c *BackendClient) InternalFetch(ctx context.Context, method, rawURL string, header http.Header, body io.Reader, timeout time.Duration) (*model.ProxiedResponse, error) {
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header.Clone()
	}
	if cl := req.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			req.ContentLength = n
		}
		req.Header.Del("Content-Length")
	}

	resp, err := c.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Fetch runs InternalFetch for a prepared UpstreamTarget.
func (c *BackendClient) Fetch(ctx context.Context, method string, target model.UpstreamTarget, body io.Reader, timeout time.Duration) (*model.ProxiedResponse, error) {
	return c.InternalFetch(ctx, method, target.URL(), target.Header(), body, timeout)
}

// cancelOnClose releases the request deadline once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
