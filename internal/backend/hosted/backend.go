package hosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/tailormade/internal/backend/events"
	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// refreshMargin is how close to expiry an access token is refreshed.
const refreshMargin = 30 * time.Second

// Provider hands out per-client views of the hosted backend.
type Provider struct {
	client *Client
	tokens *TokenStore
	bus    events.Bus
	now    func() time.Time
}

// NewProvider creates the hosted backend provider.
func NewProvider(client *Client, tokens *TokenStore, bus events.Bus) *Provider {
	return &Provider{client: client, tokens: tokens, bus: bus, now: time.Now}
}

// ForClient returns the backend bound to clientID.
func (p *Provider) ForClient(clientID string) auth.AuthBackend {
	return &clientBackend{p: p, clientID: clientID}
}

// ErrNoProfileCredentials is returned when a profile is requested for a
// user the client holds no token for and no service key is configured.
var ErrNoProfileCredentials = errors.New("no credentials for profile access")

// ProfilesFor returns clientID's view of the profiles table. Requests carry
// the client's own access token so row level security applies; the service
// key is used only when the client holds no session for that user.
func (p *Provider) ProfilesFor(clientID string) auth.ProfileStore {
	return &clientProfiles{p: p, clientID: clientID}
}

type clientProfiles struct {
	p        *Provider
	clientID string
}

func (s *clientProfiles) FetchProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	bearer, err := s.bearer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.p.client.FetchProfile(ctx, bearer, userID)
}

func (s *clientProfiles) UpdateProfile(ctx context.Context, userID string, update auth.ProfileUpdate) error {
	bearer, err := s.bearer(ctx, userID)
	if err != nil {
		return err
	}
	return s.p.client.UpdateProfile(ctx, bearer, userID, update)
}

func (s *clientProfiles) bearer(ctx context.Context, userID string) (string, error) {
	stored, err := s.p.tokens.Load(ctx, s.clientID)
	if err != nil {
		return "", err
	}
	if stored != nil && stored.User.ID == userID && stored.AccessToken != "" {
		return stored.AccessToken, nil
	}
	if s.p.client.serviceKey != "" {
		return s.p.client.serviceKey, nil
	}
	return "", fmt.Errorf("profile %s: %w", userID, ErrNoProfileCredentials)
}

type clientBackend struct {
	p        *Provider
	clientID string
}

// CurrentSession returns the stored session, refreshing the access token
// when it is about to expire. A rejected refresh ends the session and
// announces SIGNED_OUT.
func (b *clientBackend) CurrentSession(ctx context.Context) (*auth.Session, error) {
	stored, err := b.p.tokens.Load(ctx, b.clientID)
	if err != nil || stored == nil {
		return nil, err
	}

	if b.p.now().Add(refreshMargin).Before(stored.ExpiresAt) {
		return &auth.Session{User: stored.User, ExpiresAt: stored.ExpiresAt}, nil
	}

	tok, err := b.p.client.RefreshGrant(ctx, stored.RefreshToken)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			slog.Info("hosted refresh rejected, ending session", slog.Any("error", err))
			if derr := b.p.tokens.Delete(ctx, b.clientID); derr != nil {
				return nil, derr
			}
			b.publish(ctx, auth.Event{Type: auth.EventSignedOut})
			return nil, nil
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	sess, err := b.store(ctx, tok)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, auth.Event{Type: auth.EventTokenRefreshed, Session: sess})
	return sess, nil
}

// SignInWithPassword runs the password grant and announces SIGNED_IN.
func (b *clientBackend) SignInWithPassword(ctx context.Context, email, password string) error {
	tok, err := b.p.client.PasswordGrant(ctx, email, password)
	if err != nil {
		return err
	}
	sess, err := b.store(ctx, tok)
	if err != nil {
		return err
	}
	b.publish(ctx, auth.Event{Type: auth.EventSignedIn, Session: sess})
	return nil
}

// SignUp registers the identity. When the service returns a session the
// client is signed in; otherwise confirmation is pending and no event fires.
func (b *clientBackend) SignUp(ctx context.Context, email, password string, meta auth.Metadata) (*auth.Identity, error) {
	resp, err := b.p.client.SignUp(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken != "" && resp.User != nil {
		sess, err := b.store(ctx, &resp.tokenResponse)
		if err != nil {
			return nil, err
		}
		b.publish(ctx, auth.Event{Type: auth.EventSignedIn, Session: sess})
		return &auth.Identity{ID: resp.User.ID, Email: resp.User.Email}, nil
	}

	if resp.ID == "" {
		return nil, nil
	}
	return &auth.Identity{ID: resp.ID, Email: resp.Email}, nil
}

// SignOut revokes the session remotely, then forgets it. A failed remote
// logout keeps the tokens so the session is not half-ended.
func (b *clientBackend) SignOut(ctx context.Context) error {
	stored, err := b.p.tokens.Load(ctx, b.clientID)
	if err != nil {
		return err
	}
	if stored != nil {
		if err := b.p.client.Logout(ctx, stored.AccessToken); err != nil {
			return err
		}
		if err := b.p.tokens.Delete(ctx, b.clientID); err != nil {
			return err
		}
	}
	b.publish(ctx, auth.Event{Type: auth.EventSignedOut})
	return nil
}

// OnAuthStateChange subscribes handler to this client's events.
func (b *clientBackend) OnAuthStateChange(handler func(auth.Event)) auth.Subscription {
	return b.p.bus.Subscribe(b.clientID, handler)
}

// store saves a token response and returns the session it describes.
func (b *clientBackend) store(ctx context.Context, tok *tokenResponse) (*auth.Session, error) {
	if tok.User == nil {
		return nil, errors.New("token response without user")
	}

	expiresAt := time.Unix(tok.ExpiresAt, 0).UTC()
	if tok.ExpiresAt == 0 {
		expiresAt = b.p.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	}

	stored := &storedSession{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         auth.Identity{ID: tok.User.ID, Email: tok.User.Email},
	}
	if err := b.p.tokens.Save(ctx, b.clientID, stored); err != nil {
		return nil, err
	}
	return &auth.Session{User: stored.User, ExpiresAt: expiresAt}, nil
}

func (b *clientBackend) publish(ctx context.Context, ev auth.Event) {
	if err := b.p.bus.Publish(ctx, b.clientID, ev); err != nil {
		slog.Warn("failed to publish auth event",
			slog.String("event", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
