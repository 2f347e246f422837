// Package events carries auth state changes from a backend to the managers
// listening for one client. MemoryBus delivers within the process; RedisBus
// also fans events out to other server instances through Redis pub/sub.
package events

import (
	"context"
	"sync"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// Bus routes auth events by client id.
type Bus interface {
	// Publish delivers ev to every local listener of clientID before
	// returning.
	Publish(ctx context.Context, clientID string, ev auth.Event) error
	// Subscribe registers handler for clientID's events.
	Subscribe(clientID string, handler func(auth.Event)) auth.Subscription
}

// MemoryBus is an in-process Bus. Handlers run synchronously on the
// publisher's goroutine, in registration order.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscriber
}

type subscriber struct {
	id      int
	handler func(auth.Event)
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]subscriber)}
}

// Publish delivers ev to clientID's listeners.
func (b *MemoryBus) Publish(_ context.Context, clientID string, ev auth.Event) error {
	b.deliver(clientID, ev)
	return nil
}

// Subscribe registers handler for clientID.
func (b *MemoryBus) Subscribe(clientID string, handler func(auth.Event)) auth.Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[clientID] = append(b.subs[clientID], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return auth.SubscriptionFunc(func() {
		once.Do(func() { b.remove(clientID, id) })
	})
}

// Listeners returns the number of handlers registered for clientID.
func (b *MemoryBus) Listeners(clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[clientID])
}

// deliver calls every handler outside the lock so a handler may itself
// subscribe or unsubscribe.
func (b *MemoryBus) deliver(clientID string, ev auth.Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs[clientID]))
	copy(subs, b.subs[clientID])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

func (b *MemoryBus) remove(clientID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[clientID]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, clientID)
		return
	}
	b.subs[clientID] = subs
}
