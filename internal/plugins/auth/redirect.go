package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redirectKeyPrefix is the Redis key prefix for remembered destinations.
const redirectKeyPrefix = "redirect:"

// RedirectStore remembers the one path a client tried to open before being
// sent to log in.
type RedirectStore interface {
	// Save overwrites the client's redirect target.
	Save(ctx context.Context, clientID, path string) error
	// Consume returns and clears the target in one step. "" means none.
	Consume(ctx context.Context, clientID string) (string, error)
}

// redisRedirectStore keeps targets in Redis with a TTL so abandoned
// detours expire with the client.
type redisRedirectStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedirectStore creates a Redis-backed redirect store.
func NewRedirectStore(rdb *redis.Client, ttl time.Duration) RedirectStore {
	return &redisRedirectStore{redis: rdb, ttl: ttl}
}

// Save stores path for clientID.
func (s *redisRedirectStore) Save(ctx context.Context, clientID, path string) error {
	if err := s.redis.Set(ctx, redirectKeyPrefix+clientID, path, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing redirect target: %w", err)
	}
	return nil
}

// Consume reads and deletes the target atomically with GETDEL, so a
// replayed navigation finds nothing.
func (s *redisRedirectStore) Consume(ctx context.Context, clientID string) (string, error) {
	path, err := s.redis.GetDel(ctx, redirectKeyPrefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("consuming redirect target: %w", err)
	}
	return path, nil
}

// SafeRedirectPath reports whether path is a same-site absolute path.
// Protocol-relative ("//host") and backslash tricks are rejected.
func SafeRedirectPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	if strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return false
	}
	return !strings.ContainsAny(path, "\r\n")
}
