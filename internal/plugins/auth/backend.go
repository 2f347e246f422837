package auth

import (
	"context"
)

// AuthBackend is one client's view of the remote authentication service.
// Implementations keep the client's tokens themselves; callers only see
// sessions and identities.
type AuthBackend interface {
	// CurrentSession returns the client's session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)

	// SignInWithPassword verifies credentials. On success the backend emits
	// SIGNED_IN to subscribers before returning.
	SignInWithPassword(ctx context.Context, email, password string) error

	// SignUp creates an identity carrying the given metadata. A nil identity
	// with a nil error means the backend created nothing.
	SignUp(ctx context.Context, email, password string, meta Metadata) (*Identity, error)

	// SignOut ends the client's session and emits SIGNED_OUT.
	SignOut(ctx context.Context) error

	// OnAuthStateChange registers handler for the client's auth events.
	OnAuthStateChange(handler func(Event)) Subscription
}

// ProfileStore reads and writes profile records by user id.
type ProfileStore interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
}

// Subscription is a registered event handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// BackendProvider hands out per-client backends.
type BackendProvider interface {
	ForClient(clientID string) AuthBackend
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }
