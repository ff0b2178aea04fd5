package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:v1:"

// Blacklist stores revoked tokens until they expire on their own.
type Blacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist keeps revoked tokens in Redis with a TTL matching the token
// lifetime.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist constructs a Redis-backed token blacklist.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

// Revoke marks the token as unusable for ttl.
func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}
	return b.client.Set(ctx, blacklistPrefix+token, "revoked", ttl).Err()
}

// IsRevoked reports whether the token was revoked.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if err := b.client.Get(ctx, blacklistPrefix+token).Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type memoryBlacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryBlacklist builds an in-memory blacklist for tests and dev mode.
func NewMemoryBlacklist() Blacklist {
	return &memoryBlacklist{revoked: make(map[string]time.Time)}
}

func (b *memoryBlacklist) Revoke(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = time.Now().Add(ttl)
	return nil
}

func (b *memoryBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	until, ok := b.revoked[token]
	return ok && time.Now().Before(until), nil
}
