package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"portal-edge/internal/cache"
	"portal-edge/internal/config"
	"portal-edge/internal/metrics"
	"portal-edge/internal/model"
)

// RevalidationResult lists the paths actually invalidated.
type RevalidationResult struct {
	Revalidated []string
	Count       int
	Timestamp   time.Time
}

// Revalidator invalidates cached entries tagged with the requested paths.
type Revalidator struct {
	secret  string
	store   cache.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRevalidator creates a Revalidator. The metrics parameter is optional.
func NewRevalidator(cfg *config.Config, store cache.Store, logger *slog.Logger, m *metrics.Metrics) *Revalidator {
	return &Revalidator{
		secret:  cfg.Revalidate.Secret,
		store:   store,
		logger:  logger.With("component", "revalidator"),
		metrics: m,
		now:     time.Now,
	}
}

// Revalidate checks the shared secret and invalidates every distinct path
// beginning with "/". Without a configured server secret every request is
// rejected.
func (r *Revalidator) Revalidate(ctx context.Context, req model.RevalidationRequest) (*RevalidationResult, error) {
	if r.secret == "" || req.Secret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(r.secret)) != 1 {
		return nil, &AuthError{Reason: "invalid revalidation secret"}
	}

	paths := normalizePaths(req.Paths)
	done := make([]string, 0, len(paths))
	for _, p := range paths {
		n, err := r.store.InvalidateTag(ctx, p)
		if err != nil {
			r.logger.Error("revalidate path", "path", p, "err", err)
			continue
		}
		r.logger.Info("revalidated path", "path", p, "entries", n)
		done = append(done, p)
	}

	if r.metrics != nil {
		r.metrics.RevalidatedPaths.Add(float64(len(done)))
	}

	return &RevalidationResult{
		Revalidated: done,
		Count:       len(done),
		Timestamp:   r.now().UTC(),
	}, nil
}

// normalizePaths drops entries not starting with "/" and duplicates,
// keeping first-seen order.
func normalizePaths(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if !strings.HasPrefix(p, "/") || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
