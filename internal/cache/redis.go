// Package cache wraps the optional Redis deployment used for read-through caching
// and short-lived checkout guards.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Config selects the Redis server. An empty Addr disables Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open connects to Redis and pings it. It returns nil, nil when Redis is disabled.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", errPing)
	}
	return client, nil
}

// releaseScript deletes a guard key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard is a best-effort mutual exclusion keyed by string, backed by SET NX.
type Guard struct {
	client *redis.Client
	prefix string
}

// NewGuard returns a Guard. A nil client yields a guard that always grants.
func NewGuard(client *redis.Client, prefix string) *Guard {
	if prefix == "" {
		prefix = "ticket-engine"
	}
	return &Guard{client: client, prefix: prefix}
}

// Acquire takes the guard for key until ttl elapses or release is called. When Redis
// is unreachable the guard is granted and the error is only logged.
func (g *Guard) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool) {
	noop := func() {}
	if g == nil || g.client == nil {
		return noop, true
	}
	fullKey := g.prefix + ":guard:" + key
	token := uuid.NewString()
	ok, errSet := g.client.SetNX(ctx, fullKey, token, ttl).Result()
	if errSet != nil {
		log.WithError(errSet).WithField("key", fullKey).Warn("cache: guard unavailable, continuing without it")
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if errRelease := releaseScript.Run(releaseCtx, g.client, []string{fullKey}, token).Err(); errRelease != nil && !errors.Is(errRelease, redis.Nil) {
			log.WithError(errRelease).WithField("key", fullKey).Warn("cache: release guard")
		}
	}, true
}

// JSONCache stores small JSON documents with a TTL.
type JSONCache struct {
	client *redis.Client
	prefix string
}

// NewJSONCache returns a JSONCache. A nil client disables caching.
func NewJSONCache(client *redis.Client, prefix string) *JSONCache {
	if prefix == "" {
		prefix = "ticket-engine"
	}
	return &JSONCache{client: client, prefix: prefix}
}

// Get returns the cached bytes for key. A miss or a disabled cache returns ok=false.
func (c *JSONCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, errGet := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Debug("cache: get failed")
		}
		return nil, false
	}
	return raw, true
}

// Set stores value under key for ttl. Failures are logged and ignored.
func (c *JSONCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if errSet := c.client.Set(ctx, c.prefix+":"+key, value, ttl).Err(); errSet != nil {
		log.WithError(errSet).Debug("cache: set failed")
	}
}
