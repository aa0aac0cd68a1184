package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL is how long a delivery key is remembered.
const DefaultDedupeTTL = 12 * time.Hour

// Deduper remembers delivery keys so redelivered events are dropped.
type Deduper interface {
	// MarkIfNew records key and reports whether it had not been seen within the TTL.
	MarkIfNew(ctx context.Context, key string) (bool, error)
}

// CommentKey changes whenever a comment is edited, so edits are processed once each.
func CommentKey(id int64, updated time.Time) string {
	return fmt.Sprintf("comment:%d:%d", id, updated.Unix())
}

// MemoryDeduper keeps keys in process memory.
type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryDeduper creates an in-process deduper.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (d *MemoryDeduper) MarkIfNew(_ context.Context, key string) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, k)
		}
	}

	if expiry, ok := d.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.entries[key] = now.Add(d.ttl)
	return true, nil
}

const redisKeyPrefix = "fcpbot:delivery:"

// RedisDeduper shares delivery keys between replicas.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (d *RedisDeduper) MarkIfNew(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, redisKeyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}
