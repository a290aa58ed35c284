package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"portal-edge/internal/cache"
	"portal-edge/internal/client"
	"portal-edge/internal/config"
	"portal-edge/internal/metrics"
	"portal-edge/internal/service"
)

type testStack struct {
	cfg      *config.Config
	resolver *config.Resolver
	client   *client.BackendClient
	store    cache.Store
	metrics  *metrics.Metrics
	handlers Handlers
	echo     *echo.Echo
}

// newTestStack builds every handler against backend and registers the
// routes on a fresh Echo instance.
func newTestStack(t *testing.T, backend http.Handler, mutate func(*config.Config)) *testStack {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg, err := config.Load(&config.CLI{APIURL: srv.URL})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Countries = map[string]string{"jo": "1"}
	cfg.Revalidate.Secret = "s3cret"
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	r := config.NewResolver(cfg)
	bc := client.NewBackendClient(cfg, r, logger, m)
	store := cache.NewMemory()
	fetcher := service.NewFetcher(bc, r, store, cfg, logger, m)
	auth := service.NewAuthorizer(bc, r, cfg, logger)

	h := Handlers{
		Proxy:      NewProxyHandler(service.NewFileService(bc, r, auth, cfg, logger), cfg, logger),
		Revalidate: NewRevalidateHandler(service.NewRevalidator(cfg, store, logger, m), logger),
		Feed:       NewFeedHandler(service.NewFeedGenerator(fetcher, r, cfg, logger), logger),
		Debug:      NewDebugHandler(bc, r, cfg, logger),
		Health:     NewHealthHandler(cfg, r, "test"),
	}

	e := echo.New()
	RegisterRoutes(e, cfg, m, h)

	return &testStack{
		cfg:      cfg,
		resolver: r,
		client:   bc,
		store:    store,
		metrics:  m,
		handlers: h,
		echo:     e,
	}
}

func (s *testStack) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}
