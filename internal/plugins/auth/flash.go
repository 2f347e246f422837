package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// flashKeyPrefix is the Redis key prefix for pending notices.
const flashKeyPrefix = "flash:"

// FlashStore queues notices per client in Redis until the next rendered
// page drains them.
type FlashStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewFlashStore creates a flash store; pending notices expire after ttl.
func NewFlashStore(rdb *redis.Client, ttl time.Duration) *FlashStore {
	return &FlashStore{redis: rdb, ttl: ttl}
}

// Push appends a notice for clientID.
func (s *FlashStore) Push(ctx context.Context, clientID string, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notice: %w", err)
	}

	key := flashKeyPrefix + clientID
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pushing notice: %w", err)
	}
	return nil
}

// Drain returns all pending notices for clientID in order and removes them.
func (s *FlashStore) Drain(ctx context.Context, clientID string) ([]Notice, error) {
	key := flashKeyPrefix + clientID

	var lrange *redis.StringSliceCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("draining notices: %w", err)
	}

	raw := lrange.Val()
	notices := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var n Notice
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			slog.Warn("dropping malformed notice", slog.Any("error", err))
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}

// For returns a Notifier bound to clientID.
func (s *FlashStore) For(clientID string) Notifier {
	return &flashNotifier{store: s, clientID: clientID}
}

type flashNotifier struct {
	store    *FlashStore
	clientID string
}

// Notify queues n; a Redis failure only costs the toast, so it is logged.
func (f *flashNotifier) Notify(ctx context.Context, n Notice) {
	if err := f.store.Push(context.WithoutCancel(ctx), f.clientID, n); err != nil {
		slog.Warn("failed to queue notice",
			slog.String("kind", string(n.Kind)),
			slog.Any("error", err),
		)
	}
}
