package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zxtrader/pricing-sub000/internal/monitoring"
)

const backendRedis = "redis"

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client   redis.UniversalClient
	config   *CacheConfig
	metrics  *CacheMetrics
	observer *monitoring.Metrics
	mu       sync.RWMutex
}

// NewRedisCache connects to the server named by config.URL and verifies it with a ping
func NewRedisCache(ctx context.Context, config *CacheConfig, observer *monitoring.Metrics) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, NewCacheError("connect", "", ErrCodeInvalidConfig, err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConnections
	opts.MaxRetries = config.MaxRetries
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opts.WriteTimeout = config.WriteTimeout
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.IdleTimeout > 0 {
		opts.ConnMaxIdleTime = config.IdleTimeout
	}

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, NewCacheError("connect", "", ErrCodeConnectionFailed, err)
	}

	return NewRedisCacheFromClient(client, config, observer), nil
}

// NewRedisCacheFromClient wraps an existing client, e.g. a cluster client
func NewRedisCacheFromClient(client redis.UniversalClient, config *CacheConfig, observer *monitoring.Metrics) *RedisCache {
	if config == nil {
		config = DefaultRedisConfig()
	}
	return &RedisCache{
		client:   client,
		config:   config,
		metrics:  &CacheMetrics{},
		observer: observer,
	}
}

// Basic operations

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	err := r.client.Set(ctx, key, value, ttl).Err()
	r.recordOperation("set", start, err)
	if err != nil {
		return NewCacheError("set", key, ErrCodeConnectionFailed, err)
	}

	return nil
}

// Batch operations

// MGet returns only the keys that exist
func (r *RedisCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	start := time.Now()
	values, err := r.client.MGet(ctx, keys...).Result()
	r.recordOperation("mget", start, err)
	if err != nil {
		return nil, NewCacheError("mget", "", ErrCodeConnectionFailed, err)
	}

	for i, key := range keys {
		if i < len(values) && values[i] != nil {
			if str, ok := values[i].(string); ok {
				result[key] = []byte(str)
				r.recordHit("mget")
				continue
			}
		}
		r.recordMiss("mget")
	}

	return result, nil
}

func (r *RedisCache) MSet(ctx context.Context, keyValues map[string][]byte, ttl time.Duration) error {
	if len(keyValues) == 0 {
		return nil
	}

	start := time.Now()

	pairs := make([]interface{}, 0, len(keyValues)*2)
	for key, value := range keyValues {
		pairs = append(pairs, key, value)
	}

	pipe := r.client.Pipeline()
	pipe.MSet(ctx, pairs...)

	// Set TTL for each key if specified
	if ttl > 0 {
		for key := range keyValues {
			pipe.Expire(ctx, key, ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	r.recordOperation("mset", start, err)
	if err != nil {
		return NewCacheError("mset", "", ErrCodeConnectionFailed, err)
	}

	return nil
}

// Set operations

func (r *RedisCache) SAdd(ctx context.Context, key string, members ...[]byte) error {
	if len(members) == 0 {
		return nil
	}

	start := time.Now()

	interfaceMembers := make([]interface{}, len(members))
	for i, m := range members {
		interfaceMembers[i] = m
	}

	err := r.client.SAdd(ctx, key, interfaceMembers...).Err()
	r.recordOperation("sadd", start, err)
	if err != nil {
		return NewCacheError("sadd", key, ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) SMembers(ctx context.Context, key string) ([][]byte, error) {
	start := time.Now()

	members, err := r.client.SMembers(ctx, key).Result()
	r.recordOperation("smembers", start, err)
	if err != nil {
		return nil, NewCacheError("smembers", key, ErrCodeConnectionFailed, err)
	}

	result := make([][]byte, len(members))
	for i, member := range members {
		result[i] = []byte(member)
	}

	return result, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	start := time.Now()

	err := r.client.Ping(ctx).Err()
	r.recordOperation("ping", start, err)
	if err != nil {
		return NewCacheError("ping", "", ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Metrics methods

func (r *RedisCache) recordOperation(op string, start time.Time, err error) {
	latency := time.Since(start)
	r.observer.RecordStoreOperation(backendRedis, op, err, latency)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch op {
	case "mget", "smembers":
		r.metrics.GetCount++
	case "set", "mset", "sadd":
		r.metrics.SetCount++
	}
	if err != nil {
		r.metrics.ErrorCount++
	}

	if latency > r.metrics.MaxLatency {
		r.metrics.MaxLatency = latency
	}
	if r.metrics.AvgLatency == 0 {
		r.metrics.AvgLatency = latency
	} else {
		r.metrics.AvgLatency = (r.metrics.AvgLatency + latency) / 2
	}

	r.metrics.LastUpdated = time.Now()
}

func (r *RedisCache) recordHit(op string) {
	r.observer.RecordCacheOperation(op, "hit")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.HitCount++
	r.updateHitRatio()
}

func (r *RedisCache) recordMiss(op string) {
	r.observer.RecordCacheOperation(op, "miss")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.MissCount++
	r.updateHitRatio()
}

func (r *RedisCache) updateHitRatio() {
	total := r.metrics.HitCount + r.metrics.MissCount
	if total > 0 {
		r.metrics.HitRatio = float64(r.metrics.HitCount) / float64(total)
	}
}

// GetMetrics returns current cache metrics
func (r *RedisCache) GetMetrics() *CacheMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics := *r.metrics
	return &metrics
}

// DefaultRedisConfig returns the settings used when none are supplied
func DefaultRedisConfig() *CacheConfig {
	return &CacheConfig{
		URL:                "redis://localhost:6379/0",
		PoolSize:           10,
		MinIdleConnections: 5,
		MaxRetries:         3,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		PoolTimeout:        4 * time.Second,
		IdleTimeout:        5 * time.Minute,
		KeyPrefix:          "pricing:",
	}
}
