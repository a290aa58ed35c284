// Package cache provides a tagged response cache for backend fetches.
// Entries carry tags (revalidation paths); invalidating a tag drops every
// entry that carries it.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal-edge/internal/config"
)

// Store is implemented by every cache driver. Implementations are safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
	Close() error
}

// Key joins parts into a stable cache key.
func Key(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// New builds the Store selected by cfg.Cache.Driver.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Cache.Driver {
	case "redis":
		s, err := NewRedis(ctx, RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		logger.Info("cache enabled", "driver", "redis", "addr", cfg.Cache.RedisAddr)
		return s, nil
	case "none":
		logger.Info("cache disabled")
		return Nop{}, nil
	default:
		logger.Info("cache enabled", "driver", "memory")
		return NewMemory(), nil
	}
}

// Nop is a Store that never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration, []string) error { return nil }
func (Nop) InvalidateTag(context.Context, string) (int, error) { return 0, nil }
func (Nop) Close() error { return nil }
