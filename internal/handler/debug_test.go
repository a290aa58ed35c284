package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-edge/internal/config"
)

func enableDebug(cfg *config.Config) { cfg.Debug.Enabled = true }

func probe(t *testing.T, s *testStack, query string) probeResponse {
	t.Helper()
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/debug/internal-fetch"+query, http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	var res probeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return res
}

func TestDebugHandler_OK(t *testing.T) {
	s := newTestStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ping" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"pong":true}`))
	}), enableDebug)

	res := probe(t, s, "")
	if !res.OK || res.Status != http.StatusOK || res.ErrorKind != "" {
		t.Errorf("probe = %+v", res)
	}
	if res.URL != s.resolver.InternalURL()+"/api/ping" {
		t.Errorf("url = %q", res.URL)
	}
	if res.InternalFetch {
		t.Error("internal_fetch = true without relaxed TLS")
	}
}

func TestDebugHandler_Timeout(t *testing.T) {
	release := make(chan struct{})
	s := newTestStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), enableDebug)
	defer close(release)

	res := probe(t, s, "?timeout=50ms")
	if res.OK || res.ErrorKind != "timeout" {
		t.Errorf("probe = %+v, want timeout", res)
	}
	if res.DurationMS > int64((5 * time.Second).Milliseconds()) {
		t.Errorf("duration_ms = %d, probe did not honour timeout", res.DurationMS)
	}
}

func TestDebugHandler_StatusNotOK(t *testing.T) {
	s := newTestStack(t, http.NotFoundHandler(), enableDebug)

	res := probe(t, s, "")
	if res.OK || res.Status != http.StatusNotFound || res.ErrorKind != "status" {
		t.Errorf("probe = %+v, want status 404, ok=false and error_kind status", res)
	}
}

func TestDebugHandler_BadTimeout(t *testing.T) {
	s := newTestStack(t, http.NotFoundHandler(), enableDebug)

	for _, q := range []string{"?timeout=soon", "?timeout=-1s", "?timeout=0s"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/debug/internal-fetch"+q, http.NoBody))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestDebugHandler_DisabledByDefault(t *testing.T) {
	s := newTestStack(t, http.NotFoundHandler(), nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/debug/internal-fetch", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
