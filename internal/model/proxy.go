// Package model defines shared request/response descriptors and backend
// payload types.
package model

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestContext carries the caller identity resolved for one inbound request.
// It is fully built before any upstream call is issued.
type RequestContext struct {
	CountryCode    string
	CountryID      string
	AuthToken      string
	FrontendAPIKey string
}

// UpstreamTarget is one outbound backend call. It is not modified after
// construction; URL and Header return copies.
type UpstreamTarget struct {
	baseURL string
	path    string
	query   url.Values
	header  http.Header
}

// NewUpstreamTarget builds an UpstreamTarget, copying query and header.
func NewUpstreamTarget(baseURL, path string, query url.Values, header http.Header) UpstreamTarget {
	q := make(url.Values, len(query))
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	return UpstreamTarget{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		query:   q,
		header:  header.Clone(),
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (t UpstreamTarget) BaseURL() string { return t.baseURL }

// Path returns the request path.
func (t UpstreamTarget) Path() string { return t.path }

// Header returns a copy of the outbound headers.
func (t UpstreamTarget) Header() http.Header { return t.header.Clone() }

// URL returns the absolute target URL.
func (t UpstreamTarget) URL() string {
	p := t.path
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "" {
		p = (&url.URL{Path: p}).EscapedPath()
	}
	s := t.baseURL + p
	if len(t.query) > 0 {
		s += "?" + t.query.Encode()
	}
	return s
}

// ProxiedResponse represents the upstream response to be streamed back.
type ProxiedResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// RevalidationRequest is the payload of the revalidation webhook.
type RevalidationRequest struct {
	Secret string   `json:"secret"`
	Paths  []string `json:"paths"`
}
