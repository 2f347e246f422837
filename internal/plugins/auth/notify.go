package auth

import (
	"context"
	"sync"
)

// NoticeKind classifies a user-visible notification.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notice is a toast shown on the client's next rendered page.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Notifier surfaces notices to one client.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Navigator performs the manager's navigation side effects.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// HomePath is where a successful sign-out lands.
const HomePath = "/"

// --- Request-scoped navigation ---

type navigationKey struct{}

// Navigation records the last path a manager asked to navigate to while
// serving one request. The handler turns it into a redirect.
type Navigation struct {
	mu     sync.Mutex
	target string
}

// Target returns the recorded path, or "" if none was requested.
func (n *Navigation) Target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// WithNavigation returns a context carrying a fresh Navigation recorder.
func WithNavigation(ctx context.Context) (context.Context, *Navigation) {
	nav := &Navigation{}
	return context.WithValue(ctx, navigationKey{}, nav), nav
}

// ContextNavigator records navigation into the Navigation carried by the
// context. Navigations requested outside a request are dropped.
type ContextNavigator struct{}

// Navigate implements Navigator.
func (ContextNavigator) Navigate(ctx context.Context, path string) {
	nav, ok := ctx.Value(navigationKey{}).(*Navigation)
	if !ok {
		return
	}
	nav.mu.Lock()
	nav.target = path
	nav.mu.Unlock()
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notice) {}
