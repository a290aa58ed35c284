package config

import (
	"net/http"
	"net/url"
	"strings"

	"portal-edge/internal/model"
)

// Resolver derives backend URLs and per-request headers from configuration.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	baseURL     string
	internalURL string
	hostname    string
	frontendKey string
	relaxedTLS  bool
	production  bool
	countries   map[string]string
}

// NewResolver builds a Resolver from a validated Config.
func NewResolver(cfg *Config) *Resolver {
	base := strings.TrimRight(cfg.Backend.PublicURL, "/")
	internal := strings.TrimRight(cfg.Backend.InternalURL, "/")
	if internal == "" {
		internal = base
	}

	hostname := strings.ToLower(strings.TrimSpace(cfg.Backend.Hostname))
	if hostname == "" {
		if u, err := url.Parse(internal); err == nil {
			hostname = strings.ToLower(u.Hostname())
		}
	}

	countries := make(map[string]string, len(cfg.Countries))
	for code, id := range cfg.Countries {
		countries[strings.ToLower(code)] = id
	}

	return &Resolver{
		baseURL:     base,
		internalURL: internal,
		hostname:    hostname,
		frontendKey: cfg.Backend.FrontendAPIKey,
		relaxedTLS:  cfg.Backend.RelaxedTLS,
		production:  strings.EqualFold(cfg.Site.Environment, "production"),
		countries:   countries,
	}
}

// BaseURL returns the public backend URL as seen by browsers.
func (r *Resolver) BaseURL() string { return r.baseURL }

// InternalURL returns the backend URL used for server-side calls.
func (r *Resolver) InternalURL() string { return r.internalURL }

// Hostname returns the canonical internal API hostname.
func (r *Resolver) Hostname() string { return r.hostname }

// RelaxedTLS reports whether relaxed certificate checks were requested for
// the internal host.
func (r *Resolver) RelaxedTLS() bool { return r.relaxedTLS }

// IsProduction reports whether the deployment environment is production.
func (r *Resolver) IsProduction() bool { return r.production }

// CountryID maps a country code to the backend country id.
func (r *Resolver) CountryID(code string) (string, bool) {
	id, ok := r.countries[strings.ToLower(strings.TrimSpace(code))]
	return id, ok
}

// HeadersFor returns the default backend headers. Country and token are
// optional; empty values are omitted.
func (r *Resolver) HeadersFor(countryID, token string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("X-Requested-With", "XMLHttpRequest")
	if r.frontendKey != "" {
		h.Set("X-Frontend-Key", r.frontendKey)
	}
	if countryID != "" {
		h.Set("X-Country-Id", countryID)
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// RequestContext resolves the caller identity for one request. An explicit
// country id (the country_id cookie) wins over the code lookup.
func (r *Resolver) RequestContext(countryCode, countryID, token string) model.RequestContext {
	code := strings.ToLower(strings.TrimSpace(countryCode))
	id := strings.TrimSpace(countryID)
	if id == "" && code != "" {
		id, _ = r.CountryID(code)
	}
	return model.RequestContext{
		CountryCode:    code,
		CountryID:      id,
		AuthToken:      strings.TrimSpace(token),
		FrontendAPIKey: r.frontendKey,
	}
}

// Headers is HeadersFor applied to a RequestContext.
func (r *Resolver) Headers(rc model.RequestContext) http.Header {
	return r.HeadersFor(rc.CountryID, rc.AuthToken)
}
