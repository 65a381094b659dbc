package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferro-labs/afd-translator/internal/logging"
)

// DefaultRedisPrefix namespaces every key written by Redis.
const DefaultRedisPrefix = "afd:translation:"

// Redis is a Redis-backed translation store. Entries are written with the
// retention window as their Redis TTL. Faults are logged and reported as
// misses so a Redis outage never fails a translation.
type Redis struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis connects to url and verifies the connection with PING.
func NewRedis(ctx context.Context, url, keyPrefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFromClient(client, keyPrefix, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, keyPrefix: keyPrefix, now: time.Now}
}

// Get reads key and checks its age against the retention window.
func (c *Redis) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		logging.FromContext(ctx).Warn("shared cache read failed", "key", key, "error", err)
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logging.FromContext(ctx).Warn("shared cache entry unreadable", "key", key, "error", err)
		return Entry{}, false
	}
	if entry.Translation == "" || entry.Age(c.now()) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

// Set writes translation under key with the retention window as TTL.
func (c *Redis) Set(ctx context.Context, key, translation string) {
	payload, err := json.Marshal(Entry{Translation: translation, Time: c.now()})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, string(payload), c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
