package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix starts every Redis key written by a Manager.
const KeyPrefix = "collabgraph"

// DefaultNamespace is used when a manager is created without a market.
const DefaultNamespace = "any"

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a cached body could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores raw response bodies in Redis under one namespace, normally
// the request market. Expiry is left to Redis.
type Manager struct {
	redis     *redis.Client
	namespace string
}

// NewManager returns a manager whose keys live under namespace.
func NewManager(redisClient *redis.Client, namespace string) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	namespace = strings.ToUpper(strings.TrimSpace(namespace))
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Manager{redis: redisClient, namespace: namespace}
}

// Namespace returns the key namespace.
func (m *Manager) Namespace() string {
	return m.namespace
}

// RedisKey returns the full Redis key for key.
func (m *Manager) RedisKey(key CacheKey) string {
	return KeyPrefix + ":" + m.namespace + ":" + key.String()
}

// Lookup returns the cached body for key, or ErrCacheMiss.
func (m *Manager) Lookup(ctx context.Context, key CacheKey) ([]byte, error) {
	data, err := m.redis.Get(ctx, m.RedisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	CacheHits.WithLabelValues("redis").Inc()
	return data, nil
}

// Store keeps body for ttl. A non-positive ttl stores nothing.
func (m *Manager) Store(ctx context.Context, key CacheKey, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := m.redis.Set(ctx, m.RedisKey(key), body, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	CacheSize.WithLabelValues("redis").Add(float64(len(body)))
	return nil
}

// StoreResponse keeps a successful response body for the lifetime its headers
// allow (see Lifetime).
func (m *Manager) StoreResponse(ctx context.Context, key CacheKey, header http.Header, body []byte, fallback time.Duration) error {
	return m.Store(ctx, key, body, Lifetime(header, time.Now(), fallback))
}

// Delete removes a cached body.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, m.RedisKey(key)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// GetJSON decodes the cached body for key into T. A body that does not decode
// is deleted and reported as ErrInvalidEntry.
func GetJSON[T any](ctx context.Context, m *Manager, key CacheKey) (T, error) {
	var result T
	data, err := m.Lookup(ctx, key)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		_ = m.Delete(ctx, key)
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return result, nil
}
