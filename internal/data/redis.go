package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

const redisKeyPrefix = "glickorun:v1"

// RedisConfig configures the Redis series tier
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // default: 24h
}

// NewRedisClient opens and pings a client for cfg
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// CacheObserver is told about every cache lookup
type CacheObserver interface {
	RecordCacheLookup(tier string, hit bool)
}

// RedisTier caches series from an inner Provider in Redis as JSON. Redis
// failures degrade to the inner provider and never fail a request.
type RedisTier struct {
	client   redis.Cmdable
	inner    Provider
	ttl      time.Duration
	observer CacheObserver
}

// NewRedisTier creates a new Redis tier in front of inner
func NewRedisTier(client redis.Cmdable, inner Provider, ttl time.Duration) *RedisTier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTier{client: client, inner: inner, ttl: ttl}
}

// Observe reports hits and misses to o
func (r *RedisTier) Observe(o CacheObserver) *RedisTier {
	r.observer = o
	return r
}

// PriceSeries returns cached prices or loads and caches them
func (r *RedisTier) PriceSeries(ctx context.Context, asset string, start, end time.Time) ([]market.PricePoint, error) {
	key := seriesKey("prices", asset, start, end)
	var out []market.PricePoint
	if r.lookup(ctx, key, &out) {
		return out, nil
	}

	out, err := r.inner.PriceSeries(ctx, asset, start, end)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, out)
	return out, nil
}

// RatingSeries returns cached ratings or loads and caches them
func (r *RedisTier) RatingSeries(ctx context.Context, asset string, start, end time.Time) ([]rating.Point, error) {
	key := seriesKey("ratings", asset, start, end)
	var out []rating.Point
	if r.lookup(ctx, key, &out) {
		return out, nil
	}

	out, err := r.inner.RatingSeries(ctx, asset, start, end)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, out)
	return out, nil
}

// Invalidate removes every cached series of asset
func (r *RedisTier) Invalidate(ctx context.Context, asset string) error {
	keys, err := r.client.Keys(ctx, fmt.Sprintf("%s:*:%s:*", redisKeyPrefix, asset)).Result()
	if err != nil {
		return fmt.Errorf("redis keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (r *RedisTier) lookup(ctx context.Context, key string, dst interface{}) bool {
	hit := r.decode(ctx, key, dst)
	if r.observer != nil {
		r.observer.RecordCacheLookup("redis", hit)
	}
	return hit
}

func (r *RedisTier) decode(ctx context.Context, key string, dst interface{}) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Redis get failed, bypassing cache")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (r *RedisTier) store(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to encode series for cache")
		return
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

func seriesKey(kind, asset string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", redisKeyPrefix, kind, asset, start.UnixMilli(), end.UnixMilli())
}
