// Package local is the self-hosted auth backend: identities and profiles
// live in MariaDB, passwords are argon2id hashes, and each client's session
// is kept in Redis. State changes are announced on the event bus.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/tailormade/internal/backend/events"
	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// User-facing credential errors, worded like the hosted service's.
const (
	msgInvalidCredentials = "Invalid login credentials"
	msgAlreadyRegistered  = "User already registered"
)

// Provider hands out per-client views of the local backend.
type Provider struct {
	users    UserRepository
	sessions *SessionStore
	bus      events.Bus
	hash     hashParams
}

// NewProvider creates the local backend provider.
func NewProvider(users UserRepository, sessions *SessionStore, bus events.Bus) *Provider {
	return &Provider{users: users, sessions: sessions, bus: bus, hash: defaultHashParams}
}

// ForClient returns the backend bound to clientID.
func (p *Provider) ForClient(clientID string) auth.AuthBackend {
	return &clientBackend{p: p, clientID: clientID}
}

type clientBackend struct {
	p        *Provider
	clientID string
}

// CurrentSession returns the client's session, or nil when signed out.
func (b *clientBackend) CurrentSession(ctx context.Context) (*auth.Session, error) {
	return b.p.sessions.Current(ctx, b.clientID)
}

// SignInWithPassword verifies the credentials, opens a session and
// announces SIGNED_IN before returning.
func (b *clientBackend) SignInWithPassword(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	user, err := b.p.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		// Don't reveal whether the email exists.
		return &auth.AuthError{Message: msgInvalidCredentials, Status: http.StatusBadRequest}
	}
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}
	if !verifyPassword(password, user.PasswordHash) {
		return &auth.AuthError{Message: msgInvalidCredentials, Status: http.StatusBadRequest}
	}

	if _, err := b.startSession(ctx, auth.Identity{ID: user.ID, Email: user.Email}); err != nil {
		return err
	}

	if err := b.p.users.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
	slog.Info("user signed in", slog.String("user_id", user.ID))
	return nil
}

// SignUp creates the identity with its profile row, then signs the client
// in. Accounts are confirmed immediately.
func (b *clientBackend) SignUp(ctx context.Context, email, password string, meta auth.Metadata) (*auth.Identity, error) {
	email = normalizeEmail(email)

	// The unique index still catches a concurrent registration; this check
	// skips the hash for the common case.
	exists, err := b.p.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if exists {
		return nil, &auth.AuthError{Message: msgAlreadyRegistered, Status: http.StatusUnprocessableEntity, Err: ErrEmailTaken}
	}

	hash, err := hashPassword(password, b.p.hash)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &userRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.p.users.CreateWithProfile(ctx, user, meta); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, &auth.AuthError{Message: msgAlreadyRegistered, Status: http.StatusUnprocessableEntity, Err: err}
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	identity := auth.Identity{ID: user.ID, Email: user.Email}
	if _, err := b.startSession(ctx, identity); err != nil {
		return nil, err
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return &identity, nil
}

// SignOut destroys the client's session and announces SIGNED_OUT.
func (b *clientBackend) SignOut(ctx context.Context) error {
	if err := b.p.sessions.Destroy(ctx, b.clientID); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	b.publish(ctx, auth.Event{Type: auth.EventSignedOut})
	return nil
}

// OnAuthStateChange subscribes handler to this client's events.
func (b *clientBackend) OnAuthStateChange(handler func(auth.Event)) auth.Subscription {
	return b.p.bus.Subscribe(b.clientID, handler)
}

func (b *clientBackend) startSession(ctx context.Context, identity auth.Identity) (*auth.Session, error) {
	sess, err := b.p.sessions.Create(ctx, b.clientID, identity)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	b.publish(ctx, auth.Event{Type: auth.EventSignedIn, Session: sess})
	return sess, nil
}

// publish announces ev. Local listeners have already been called when a
// fan-out error is returned, so it is only logged.
func (b *clientBackend) publish(ctx context.Context, ev auth.Event) {
	if err := b.p.bus.Publish(ctx, b.clientID, ev); err != nil {
		slog.Warn("failed to publish auth event",
			slog.String("event", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
