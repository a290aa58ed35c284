package service

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal-edge/internal/cache"
	"portal-edge/internal/client"
	"portal-edge/internal/config"
)

// testEnv wires the services against a fake backend.
type testEnv struct {
	cfg      *config.Config
	resolver *config.Resolver
	client   *client.BackendClient
	store    *cache.Memory
	logger   *slog.Logger
	backend  *httptest.Server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv starts backend and loads a default config pointing at it.
// mutate, if non-nil, runs before the resolver and client are built.
func newTestEnv(t *testing.T, backend http.Handler, mutate func(*config.Config)) *testEnv {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg, err := config.Load(&config.CLI{APIURL: srv.URL})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Countries = map[string]string{"jo": "1", "sa": "2"}
	if mutate != nil {
		mutate(cfg)
	}

	logger := discardLogger()
	r := config.NewResolver(cfg)
	return &testEnv{
		cfg:      cfg,
		resolver: r,
		client:   client.NewBackendClient(cfg, r, logger, nil),
		store:    cache.NewMemory(),
		logger:   logger,
		backend:  srv,
	}
}

func (e *testEnv) fetcher() *Fetcher {
	return NewFetcher(e.client, e.resolver, e.store, e.cfg, e.logger, nil)
}

func (e *testEnv) authorizer() *Authorizer {
	return NewAuthorizer(e.client, e.resolver, e.cfg, e.logger)
}

func (e *testEnv) fileService() *FileService {
	return NewFileService(e.client, e.resolver, e.authorizer(), e.cfg, e.logger)
}
