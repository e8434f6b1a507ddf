package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisStore is a Redis-backed Store with JSON serialization and TTL-based
// cleanup, for deployments shared across server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the profile time-to-live. Zero disables expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the Redis key prefix. Default is "voiceloop".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis-backed profile store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "voiceloop",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Load retrieves a profile by device ID from Redis.
func (s *RedisStore) Load(ctx context.Context, deviceID string) (*DeviceProfile, error) {
	if deviceID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p DeviceProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// Save persists a profile to Redis with TTL.
func (s *RedisStore) Save(ctx context.Context, p *DeviceProfile) error {
	if p == nil {
		return ErrInvalidProfile
	}
	if p.DeviceID == "" {
		return ErrInvalidID
	}

	p.LastAccessedAt = time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.LastAccessedAt
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := s.client.Set(ctx, s.key(p.DeviceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a profile from Redis.
func (s *RedisStore) Delete(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrInvalidID
	}
	if err := s.client.Del(ctx, s.key(deviceID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key(deviceID string) string {
	return s.prefix + ":profile:" + deviceID
}
