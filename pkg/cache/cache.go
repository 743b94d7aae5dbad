// pkg/cache/cache.go
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
)

// ResultCache stores JSON-serializable analytics results. Implementations
// must fail open: a cache problem is never an operation failure.
type ResultCache interface {
	// Get loads a cached value into dest, returning true on a hit
	Get(ctx context.Context, key string, dest interface{}) bool

	// Set stores a value under key
	Set(ctx context.Context, key string, value interface{})
}

// Key derives a cache key from an operation name and its arguments.
// Arguments are hashed so keys stay short and carry no raw location names.
func Key(operation string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return "analytics:" + operation + ":" + hex.EncodeToString(sum[:16])
}

// RedisCache is a Redis-backed ResultCache with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to Redis from the cache configuration. An empty URL
// is a configuration error; callers that want caching disabled should use
// Disabled instead.
func NewRedisCache(cfg *config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if logger == nil {
		logger = zap.L()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.New("invalid redis URL: " + err.Error())
	}

	return &RedisCache{
		client: redis.NewClient(opts),
		ttl:    cfg.TTL,
		logger: logger.Named("cache"),
	}, nil
}

// Get loads a cached value. Connection failures and corrupt entries are
// logged and treated as misses.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	payload, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores a value. Failures are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to serialize cache value", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Debug("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Disabled is a ResultCache that never hits. Used when no cache is
// configured.
type Disabled struct{}

func (Disabled) Get(ctx context.Context, key string, dest interface{}) bool { return false }
func (Disabled) Set(ctx context.Context, key string, value interface{})    {}
