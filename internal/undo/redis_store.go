// Package undo stores short-lived compensating actions for version reverts.
//
// A revert immediately creates the new version; what can still be taken back
// is recorded here as an explicit pending record with a TTL rather than held
// in memory, so the undo window survives process restarts and client reloads
// and expires by itself.
package undo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when an undo token is unknown or its window
// has expired.
var ErrNotFound = errors.New("undo record not found or expired")

// Pending captures everything needed to compensate a revert: the document
// pointer as it was before the revert, and the version number the revert
// created.
type Pending struct {
	DocumentID          string    `json:"document_id"`
	FilePath            string    `json:"file_path"`
	FileSize            int64     `json:"file_size"`
	CurrentVersion      int       `json:"current_version"`
	RevertVersionNumber int       `json:"revert_version_number"`
	Actor               string    `json:"actor"`
	CreatedAt           time.Time `json:"created_at"`
}

// RedisStore keeps pending undo records in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns a store with the given
// undo window.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 8 * time.Second
	}
	return &RedisStore{
		client: client,
		prefix: "undo:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// TTL returns the undo window length.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Save records a pending undo under the token for the undo window.
func (s *RedisStore) Save(ctx context.Context, token string, pending Pending) error {
	pending.CreatedAt = time.Now()
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal undo record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save undo record: %w", err)
	}
	return nil
}

// Restore puts back a record consumed by Take, keeping the remainder of
// its original window. Used when the compensating write fails after the
// token was already consumed, so a retry inside the window still works.
func (s *RedisStore) Restore(ctx context.Context, token string, pending Pending) error {
	remaining := s.ttl - time.Since(pending.CreatedAt)
	if remaining <= 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal undo record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, remaining).Err(); err != nil {
		return fmt.Errorf("restore undo record: %w", err)
	}
	return nil
}

// Take consumes the record for a token. The delete makes each token
// single-use; a second Take returns ErrNotFound.
func (s *RedisStore) Take(ctx context.Context, token string) (Pending, error) {
	data, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return Pending{}, ErrNotFound
	}
	if err != nil {
		return Pending{}, fmt.Errorf("take undo record: %w", err)
	}

	var pending Pending
	if err := json.Unmarshal([]byte(data), &pending); err != nil {
		return Pending{}, fmt.Errorf("unmarshal undo record: %w", err)
	}
	return pending, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
