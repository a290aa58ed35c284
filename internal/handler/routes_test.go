package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portal-edge/internal/config"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/download"), strings.HasPrefix(r.URL.Path, "/storage/"):
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("bin"))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[]}`))
		}
	})
	s := newTestStack(t, backend, func(cfg *config.Config) {
		cfg.Debug.Enabled = true
		cfg.Metrics.Enabled = true
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /api/download/:fileId", http.MethodGet, "/api/download/9?countryCode=jo", http.StatusOK},
		{"GET /api/storage/*", http.MethodGet, "/api/storage/storage/a.bin", http.StatusOK},
		{"POST /api/upload/file without token", http.MethodPost, "/api/upload/file", http.StatusUnauthorized},
		{"POST /api/upload/image without token", http.MethodPost, "/api/upload/image", http.StatusUnauthorized},
		{"POST /api/revalidate without secret", http.MethodPost, "/api/revalidate", http.StatusUnauthorized},
		{"GET /rss.xml", http.MethodGet, "/rss.xml", http.StatusOK},
		{"GET /api/debug/internal-fetch", http.MethodGet, "/api/debug/internal-fetch", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
		{"DELETE /api/download/1 returns 405", http.MethodDelete, "/api/download/1", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(httptest.NewRequest(tt.method, tt.path, http.NoBody))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsExposeUpstreamCalls(t *testing.T) {
	s := newTestStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("pdf"))
	}), func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
	})

	_ = s.do(httptest.NewRequest(http.MethodGet, "/api/download/1?countryCode=jo", http.NoBody))
	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if !strings.Contains(rec.Body.String(), `portal_edge_upstream_responses_total{method="GET",status_code="200",transport="secure"} 1`) {
		t.Errorf("upstream response metric missing:\n%s", rec.Body.String())
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	s := newTestStack(t, http.NotFoundHandler(), nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
