// Package infra provides the concrete infrastructure adapters. The Redis
// adapter backs rate limiting and scheduler locks; when Redis is not
// reachable the app falls back to the in-memory store in main.go.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the minimal key-value surface the service needs: windowed
// counters for rate limiting and SETNX locks for the scheduler.
type KV interface {
	// IncrWindow increments key and starts its expiry window on first use.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// SetNX acquires a lock; returns false when the key is already held.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DelEqual deletes key only while it still holds value, so an expired
	// lock holder cannot release a lock reacquired by someone else.
	DelEqual(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// RedisKV wraps go-redis v9.
type RedisKV struct {
	rdb *redis.Client
}

// NewRedisKV connects and pings. The caller decides whether to fall back
// to in-memory on error.
func NewRedisKV(addr, password string, db int) (*RedisKV, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return &RedisKV{rdb: rdb}, nil
}

func (r *RedisKV) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr window %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *RedisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// delEqualScript is the usual compare-and-delete for token locks; GET and
// DEL must be atomic or the race comes back.
var delEqualScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (r *RedisKV) DelEqual(ctx context.Context, key, value string) (bool, error) {
	n, err := delEqualScript.Run(ctx, r.rdb, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("delequal %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}

// MemoryKV is the single-process fallback. Entries expire lazily.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	count     int64
	value     string
	expiresAt time.Time
}

// NewMemoryKV creates the in-memory fallback store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]*memEntry)}
}

func (m *MemoryKV) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok || now.After(e.expiresAt) {
		m.entries[key] = &memEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	e.count++
	return e.count, nil
}

func (m *MemoryKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	m.entries[key] = &memEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryKV) DelEqual(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) || e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MemoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MemoryKV) Close() error { return nil }
