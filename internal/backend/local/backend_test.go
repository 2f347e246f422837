package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tailormade/internal/backend/events"
	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// --- Mock Repository ---

type mockUserRepo struct {
	createFn      func(ctx context.Context, user *userRecord, meta auth.Metadata) error
	findByEmailFn func(ctx context.Context, email string) (*userRecord, error)
	emailExistsFn func(ctx context.Context, email string) (bool, error)
	lastLoginFn   func(ctx context.Context, id string) error
}

func (m *mockUserRepo) CreateWithProfile(ctx context.Context, user *userRecord, meta auth.Metadata) error {
	if m.createFn != nil {
		return m.createFn(ctx, user, meta)
	}
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*userRecord, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	if m.lastLoginFn != nil {
		return m.lastLoginFn(ctx, id)
	}
	return nil
}

// --- Helpers ---

type fixture struct {
	provider *Provider
	sessions *SessionStore
	bus      *events.MemoryBus
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T, repo UserRepository) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := NewSessionStore(rdb, time.Hour)
	bus := events.NewMemoryBus()
	p := NewProvider(repo, sessions, bus)
	p.hash = testHashParams
	return &fixture{provider: p, sessions: sessions, bus: bus, mr: mr}
}

func recordEvents(bus *events.MemoryBus, clientID string) *[]auth.Event {
	var got []auth.Event
	bus.Subscribe(clientID, func(ev auth.Event) { got = append(got, ev) })
	return &got
}

func storedUser(t *testing.T, email, password string) *userRecord {
	t.Helper()
	hash, err := hashPassword(password, testHashParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &userRecord{ID: "user-1", Email: email, PasswordHash: hash}
}

// --- Tests ---

func TestSignIn_Success(t *testing.T) {
	user := storedUser(t, "ada@example.com", "s3cret-pass")
	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*userRecord, error) {
			if email != "ada@example.com" {
				t.Errorf("expected normalized email, got %q", email)
			}
			return user, nil
		},
	}
	f := newFixture(t, repo)
	got := recordEvents(f.bus, "client-1")

	backend := f.provider.ForClient("client-1")
	if err := backend.SignInWithPassword(context.Background(), "  ADA@example.com ", "s3cret-pass"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*got) != 1 || (*got)[0].Type != auth.EventSignedIn {
		t.Fatalf("expected one SIGNED_IN event, got %+v", *got)
	}
	if (*got)[0].Session.User.ID != "user-1" {
		t.Errorf("unexpected session user %+v", (*got)[0].Session.User)
	}

	sess, err := backend.CurrentSession(context.Background())
	if err != nil || sess == nil {
		t.Fatalf("expected stored session, got %v, %v", sess, err)
	}
	if sess.User.Email != "ada@example.com" {
		t.Errorf("unexpected email %q", sess.User.Email)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	user := storedUser(t, "ada@example.com", "s3cret-pass")
	repo := &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*userRecord, error) { return user, nil },
	}
	f := newFixture(t, repo)
	got := recordEvents(f.bus, "client-1")

	err := f.provider.ForClient("client-1").SignInWithPassword(context.Background(), "ada@example.com", "nope")

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) || authErr.Message != msgInvalidCredentials {
		t.Fatalf("expected invalid credentials AuthError, got %v", err)
	}
	if len(*got) != 0 {
		t.Errorf("expected no events, got %d", len(*got))
	}
}

func TestSignIn_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	f := newFixture(t, &mockUserRepo{})

	err := f.provider.ForClient("client-1").SignInWithPassword(context.Background(), "ghost@example.com", "x")

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) || authErr.Message != msgInvalidCredentials {
		t.Fatalf("expected invalid credentials AuthError, got %v", err)
	}
}

func TestSignIn_RepositoryFailureIsNotAuthError(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*userRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	f := newFixture(t, repo)

	err := f.provider.ForClient("client-1").SignInWithPassword(context.Background(), "a@example.com", "x")
	var authErr *auth.AuthError
	if err == nil || errors.As(err, &authErr) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestSignUp_CreatesUserAndSignsIn(t *testing.T) {
	var created *userRecord
	var meta auth.Metadata
	repo := &mockUserRepo{
		createFn: func(_ context.Context, u *userRecord, m auth.Metadata) error {
			created, meta = u, m
			return nil
		},
	}
	f := newFixture(t, repo)
	got := recordEvents(f.bus, "client-1")

	identity, err := f.provider.ForClient("client-1").SignUp(context.Background(),
		"New@Example.com", "long-enough", auth.Metadata{FirstName: "Ravi", LastName: "Kumar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil || created.Email != "new@example.com" {
		t.Fatalf("expected normalized user insert, got %+v", created)
	}
	if !verifyPassword("long-enough", created.PasswordHash) {
		t.Error("stored hash does not verify")
	}
	if meta.FirstName != "Ravi" || meta.LastName != "Kumar" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if identity.ID != created.ID {
		t.Errorf("identity %q does not match created %q", identity.ID, created.ID)
	}
	if len(*got) != 1 || (*got)[0].Type != auth.EventSignedIn {
		t.Errorf("expected SIGNED_IN after sign up, got %+v", *got)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(context.Context, *userRecord, auth.Metadata) error { return ErrEmailTaken },
	}
	f := newFixture(t, repo)

	_, err := f.provider.ForClient("client-1").SignUp(context.Background(), "a@example.com", "long-enough", auth.Metadata{})

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) || authErr.Message != msgAlreadyRegistered {
		t.Fatalf("expected already registered AuthError, got %v", err)
	}
}

func TestSignUp_ExistingEmailSkipsInsert(t *testing.T) {
	created := false
	repo := &mockUserRepo{
		emailExistsFn: func(_ context.Context, email string) (bool, error) {
			return email == "ada@example.com", nil
		},
		createFn: func(context.Context, *userRecord, auth.Metadata) error {
			created = true
			return nil
		},
	}
	f := newFixture(t, repo)

	_, err := f.provider.ForClient("client-1").SignUp(context.Background(), " Ada@Example.com ", "long-enough", auth.Metadata{})

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) || authErr.Message != msgAlreadyRegistered {
		t.Fatalf("expected already registered AuthError, got %v", err)
	}
	if created {
		t.Error("insert attempted for a registered email")
	}
}

func TestSignOut_DestroysSessionAndAnnounces(t *testing.T) {
	user := storedUser(t, "ada@example.com", "pw-pw-pw-pw")
	repo := &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*userRecord, error) { return user, nil },
	}
	f := newFixture(t, repo)
	backend := f.provider.ForClient("client-1")
	ctx := context.Background()

	if err := backend.SignInWithPassword(ctx, "ada@example.com", "pw-pw-pw-pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	got := recordEvents(f.bus, "client-1")

	if err := backend.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if len(*got) != 1 || (*got)[0].Type != auth.EventSignedOut {
		t.Errorf("expected SIGNED_OUT, got %+v", *got)
	}
	sess, err := backend.CurrentSession(ctx)
	if err != nil || sess != nil {
		t.Errorf("expected no session, got %v, %v", sess, err)
	}
}

func TestClientsAreIsolated(t *testing.T) {
	user := storedUser(t, "ada@example.com", "pw-pw-pw-pw")
	repo := &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*userRecord, error) { return user, nil },
	}
	f := newFixture(t, repo)
	ctx := context.Background()

	if err := f.provider.ForClient("a").SignInWithPassword(ctx, "ada@example.com", "pw-pw-pw-pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	sess, err := f.provider.ForClient("b").CurrentSession(ctx)
	if err != nil || sess != nil {
		t.Errorf("client b should have no session, got %v, %v", sess, err)
	}
}
