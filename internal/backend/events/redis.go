package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// channelPrefix namespaces per-client event channels: auth:events:<client>.
const channelPrefix = "auth:events:"

// envelope is the wire form of a published event.
type envelope struct {
	Origin string     `json:"origin"`
	Event  auth.Event `json:"event"`
}

// RedisBus delivers events locally like MemoryBus and also publishes them
// to Redis so other instances serving the same client see them. One
// pattern subscription per process feeds remote events to local handlers;
// an instance ignores its own messages since it already delivered them.
type RedisBus struct {
	local      *MemoryBus
	redis      *redis.Client
	instanceID string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus creates a bus publishing through rdb. Call Start to receive
// events from other instances.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{
		local:      NewMemoryBus(),
		redis:      rdb,
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies this process on the bus.
func (b *RedisBus) InstanceID() string {
	return b.instanceID
}

// Start subscribes to every client channel and forwards remote events to
// local handlers until Close.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("event bus already started")
	}

	ps := b.redis.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription confirmation so no event published after
	// Start returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribing to auth events: %w", err)
	}

	b.pubsub = ps
	b.done = make(chan struct{})
	go b.listen(ps.Channel(), b.done)

	slog.Info("auth event bus started", slog.String("instance_id", b.instanceID))
	return nil
}

func (b *RedisBus) listen(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		clientID := strings.TrimPrefix(msg.Channel, channelPrefix)

		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("dropping malformed auth event",
				slog.String("channel", msg.Channel),
				slog.Any("error", err),
			)
			continue
		}
		if env.Origin == b.instanceID {
			continue
		}
		b.local.deliver(clientID, env.Event)
	}
}

// Publish delivers ev to local handlers, then to other instances. A Redis
// failure is returned after local delivery has already happened.
func (b *RedisBus) Publish(ctx context.Context, clientID string, ev auth.Event) error {
	b.local.deliver(clientID, ev)

	data, err := json.Marshal(envelope{Origin: b.instanceID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshaling auth event: %w", err)
	}
	if err := b.redis.Publish(ctx, channelPrefix+clientID, data).Err(); err != nil {
		return fmt.Errorf("publishing auth event: %w", err)
	}
	return nil
}

// Subscribe registers handler for clientID's events.
func (b *RedisBus) Subscribe(clientID string, handler func(auth.Event)) auth.Subscription {
	return b.local.Subscribe(clientID, handler)
}

// Close ends the Redis subscription and waits for the listener to exit.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
