package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis driver.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores entries under <prefix>:v:<key> and tag membership in sets
// under <prefix>:t:<tag>.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "portal-edge"
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) valueKey(key string) string { return r.prefix + ":v:" + key }
func (r *Redis) tagKey(tag string) string   { return r.prefix + ":t:" + Key(tag) }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	vk := r.valueKey(key)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, vk, data, ttl)
		for _, tag := range tags {
			// Members may outlive their value; InvalidateTag prunes them.
			p.SAdd(ctx, r.tagKey(tag), vk)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// invalidateScript deletes every member of the tag set and the set in one
// step, so a Set racing with the invalidation keeps its tag membership.
// Member keys are not declared in KEYS; the driver assumes a single node.
var invalidateScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, k in ipairs(members) do
	n = n + redis.call('DEL', k)
end
redis.call('DEL', KEYS[1])
return n
`)

// InvalidateTag deletes every entry in the tag set and the set itself. The
// count covers only entries that had not yet expired.
func (r *Redis) InvalidateTag(ctx context.Context, tag string) (int, error) {
	n, err := invalidateScript.Run(ctx, r.rdb, []string{r.tagKey(tag)}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis invalidate %s: %w", tag, err)
	}
	return n, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
