package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "listings:"

// RedisConfig holds connection parameters for the shared result cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Expiry is the Redis-side TTL used only to garbage collect old
	// snapshots. Freshness is still decided by Entry.Fresh on read.
	Expiry time.Duration
}

// RedisCache is a Cache shared between processes. A Put is a single SET so
// readers always observe a whole snapshot.
type RedisCache struct {
	rdb    *redis.Client
	expiry time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 2 * DefaultTTL
	}
	return &RedisCache{rdb: rdb, expiry: expiry}, nil
}

func redisKey(key string) string { return redisKeyPrefix + key }

// Get loads the snapshot stored under key. Redis errors are logged and
// reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("redis: get cached listings")
		return Entry{}, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("redis: decode cached listings")
		return Entry{}, false
	}
	return entry, true
}

// Put replaces the snapshot stored under key.
func (c *RedisCache) Put(ctx context.Context, key string, entry Entry) {
	data, err := encodeEntry(entry)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("redis: encode listings")
		return
	}
	if err := c.rdb.Set(ctx, redisKey(key), data, c.expiry).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("redis: set cached listings")
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func encodeEntry(entry Entry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("redis: marshal entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("redis: unmarshal entry: %w", err)
	}
	return entry, nil
}
