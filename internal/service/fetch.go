package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"portal-edge/internal/cache"
	"portal-edge/internal/client"
	"portal-edge/internal/config"
	"portal-edge/internal/metrics"
	"portal-edge/internal/model"
)

// maxFetchBody bounds JSON bodies read by the fetcher.
const maxFetchBody = 8 << 20

// FetchOptions tunes one server-side backend fetch.
type FetchOptions struct {
	Query   url.Values
	Request model.RequestContext

	// Revalidate is how long a successful body stays cached. Zero means the
	// configured default; negative disables caching for this call.
	Revalidate time.Duration

	// Tags name the revalidation paths that invalidate this entry. Empty
	// means the configured default tag.
	Tags []string

	// Timeout bounds the backend call. Zero means the backend default.
	Timeout time.Duration
}

// Fetcher performs cached, tagged GETs against the internal backend URL.
type Fetcher struct {
	client            *client.BackendClient
	resolver          *config.Resolver
	store             cache.Store
	defaultRevalidate time.Duration
	defaultTag        string
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// NewFetcher creates a Fetcher. The metrics parameter is optional.
func NewFetcher(c *client.BackendClient, r *config.Resolver, store cache.Store, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client:            c,
		resolver:          r,
		store:             store,
		defaultRevalidate: time.Duration(cfg.Fetch.RevalidateSeconds) * time.Second,
		defaultTag:        cfg.Fetch.DefaultTag,
		logger:            logger.With("component", "fetcher"),
		metrics:           m,
	}
}

// Fetch returns the body of a successful GET to path. Transport failures and
// non-2xx answers are errors; a failed fetch never yields an empty success.
// Calls carrying an auth token bypass the cache.
func (f *Fetcher) Fetch(ctx context.Context, path string, opts FetchOptions) ([]byte, error) {
	revalidate := opts.Revalidate
	if revalidate == 0 {
		revalidate = f.defaultRevalidate
	}
	tags := opts.Tags
	if len(tags) == 0 {
		tags = []string{f.defaultTag}
	}

	target := model.NewUpstreamTarget(f.resolver.InternalURL(), path, opts.Query, f.resolver.Headers(opts.Request))
	cacheable := revalidate > 0 && opts.Request.AuthToken == ""
	key := cache.Key(http.MethodGet, target.URL(), opts.Request.CountryID)

	if cacheable {
		data, ok, err := f.store.Get(ctx, key)
		switch {
		case err != nil:
			// A broken cache must not break the page; treat as a miss.
			f.observeCache("error")
			f.logger.Warn("cache get failed", "err", err, "path", path)
		case ok:
			f.observeCache("hit")
			return data, nil
		default:
			f.observeCache("miss")
		}
	}

	resp, err := f.client.Fetch(ctx, http.MethodGet, target, nil, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("fetch %s: %w", path, client.StatusError(path, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", path, err)
	}

	if cacheable {
		if err := f.store.Set(ctx, key, data, revalidate, tags); err != nil {
			f.logger.Warn("cache set failed", "err", err, "path", path)
		}
	}
	return data, nil
}

// FetchJSON fetches path and decodes it through Decode.
func FetchJSON[T any](ctx context.Context, f *Fetcher, path string, opts FetchOptions) (T, error) {
	var zero T
	data, err := f.Fetch(ctx, path, opts)
	if err != nil {
		return zero, err
	}
	out, err := Decode[T](data)
	if err != nil {
		return zero, fmt.Errorf("fetch %s: %w", path, err)
	}
	return out, nil
}

func (f *Fetcher) observeCache(result string) {
	if f.metrics != nil {
		f.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
