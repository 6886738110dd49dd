package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache defines the key-value operations the price store is built on
type Cache interface {
	// Basic operations
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Batch operations
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, keyValues map[string][]byte, ttl time.Duration) error

	// Set operations (source membership per tuple)
	SAdd(ctx context.Context, key string, members ...[]byte) error
	SMembers(ctx context.Context, key string) ([][]byte, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	// Connection, as redis://[:password@]host:port/db
	URL string `json:"url"`

	// Connection pool
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	MaxRetries         int           `json:"max_retries"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	PoolTimeout        time.Duration `json:"pool_timeout"`
	IdleTimeout        time.Duration `json:"idle_timeout"`

	// Key namespace shared by every key the store writes
	KeyPrefix string `json:"key_prefix"`
}

// CacheMetrics represents cache performance counters
type CacheMetrics struct {
	GetCount   int64 `json:"get_count"`
	SetCount   int64 `json:"set_count"`
	HitCount   int64 `json:"hit_count"`
	MissCount  int64 `json:"miss_count"`
	ErrorCount int64 `json:"error_count"`

	AvgLatency time.Duration `json:"avg_latency"`
	MaxLatency time.Duration `json:"max_latency"`

	HitRatio    float64   `json:"hit_ratio"`
	LastUpdated time.Time `json:"last_updated"`
}

// CacheError represents cache-specific errors
type CacheError struct {
	Operation string
	Key       string
	Err       error
	Code      string
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s operation failed for key '%s': %v", e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s operation failed: %v", e.Operation, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
)

// NewCacheError creates a new cache error
func NewCacheError(operation, key, code string, err error) *CacheError {
	return &CacheError{
		Operation: operation,
		Key:       key,
		Err:       err,
		Code:      code,
	}
}
