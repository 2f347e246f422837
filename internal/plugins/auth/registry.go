package auth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/keyxmakerx/tailormade/internal/metrics"
)

// ManagerFactory builds an unstarted manager for a client.
type ManagerFactory func(clientID string) *Manager

type clientEntry struct {
	manager  *Manager
	lastSeen time.Time
}

// Registry holds one running Manager per active client and evicts the
// ones that have been idle longer than the idle TTL.
type Registry struct {
	newManager ManagerFactory
	idleTTL    time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*clientEntry
	closed  bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ManagerFactory, idleTTL time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		newManager: factory,
		idleTTL:    idleTTL,
		metrics:    m,
		now:        time.Now,
		clients:    make(map[string]*clientEntry),
		stop:       make(chan struct{}),
	}
}

// Manager returns the client's manager, creating and starting it on first
// use. Each call counts as activity for idle eviction.
func (r *Registry) Manager(clientID string) *Manager {
	r.mu.Lock()
	if e, ok := r.clients[clientID]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.manager
	}

	mgr := r.newManager(clientID)
	if r.closed {
		// Shutting down: hand out a manager that never leaves loading.
		r.mu.Unlock()
		return mgr
	}
	r.clients[clientID] = &clientEntry{manager: mgr, lastSeen: r.now()}
	r.mu.Unlock()

	r.metrics.ClientAdded()
	mgr.Start()
	return mgr
}

// Lookup returns the client's manager if one is running.
func (r *Registry) Lookup(clientID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	return e.manager, true
}

// Len returns the number of running managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep closes managers idle since before now-idleTTL and returns how many
// were evicted.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Manager
	for id, e := range r.clients {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.manager)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, mgr := range idle {
		mgr.Close()
		r.metrics.ClientRemoved()
	}
	if len(idle) > 0 {
		slog.Debug("evicted idle clients", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// StartJanitor sweeps idle clients every interval until Close.
func (r *Registry) StartJanitor(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.Sweep(r.now())
			}
		}
	}()
}

// Close stops the janitor and closes every manager.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	r.mu.Lock()
	r.closed = true
	managers := make([]*Manager, 0, len(r.clients))
	for id, e := range r.clients {
		managers = append(managers, e.manager)
		delete(r.clients, id)
	}
	r.mu.Unlock()

	for _, mgr := range managers {
		mgr.Close()
		r.metrics.ClientRemoved()
	}
}
