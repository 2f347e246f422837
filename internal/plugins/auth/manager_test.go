package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/keyxmakerx/tailormade/internal/metrics"
)

// --- Mocks ---

// fakeBackend implements AuthBackend with function fields. Events are
// delivered synchronously to subscribers, like the in-memory bus.
type fakeBackend struct {
	mu       sync.Mutex
	handlers map[int]func(Event)
	nextID   int

	currentSessionFn func(ctx context.Context) (*Session, error)
	signInFn         func(ctx context.Context, email, password string) error
	signUpFn         func(ctx context.Context, email, password string, meta Metadata) (*Identity, error)
	signOutFn        func(ctx context.Context) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handlers: make(map[int]func(Event))}
}

func (f *fakeBackend) CurrentSession(ctx context.Context) (*Session, error) {
	if f.currentSessionFn != nil {
		return f.currentSessionFn(ctx)
	}
	return nil, nil
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) error {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}
	return nil
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password string, meta Metadata) (*Identity, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, email, password, meta)
	}
	return &Identity{ID: "new-user", Email: email}, nil
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		return f.signOutFn(ctx)
	}
	f.emit(Event{Type: EventSignedOut})
	return nil
}

func (f *fakeBackend) OnAuthStateChange(handler func(Event)) Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.mu.Unlock()
	return SubscriptionFunc(func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	})
}

func (f *fakeBackend) emit(ev Event) {
	f.mu.Lock()
	handlers := make([]func(Event), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeBackend) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// fakeProfiles implements ProfileStore with function fields.
type fakeProfiles struct {
	fetches  atomic.Int32
	fetchFn  func(ctx context.Context, userID string) (*Profile, error)
	updateFn func(ctx context.Context, userID string, update ProfileUpdate) error
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, userID string) (*Profile, error) {
	f.fetches.Add(1)
	if f.fetchFn != nil {
		return f.fetchFn(ctx, userID)
	}
	return &Profile{FirstName: "Ada", LastName: "Lovelace"}, nil
}

func (f *fakeProfiles) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, userID, update)
	}
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

// --- Helpers ---

type managerFixture struct {
	m        *Manager
	backend  *fakeBackend
	profiles *fakeProfiles
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newManagerFixture(t *testing.T, threshold int) *managerFixture {
	t.Helper()
	f := &managerFixture{
		backend:  newFakeBackend(),
		profiles: &fakeProfiles{},
		notifier: &recordingNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.m = NewManager(ManagerConfig{
		ClientID:              "client-under-test",
		Backend:               f.backend,
		Profiles:              f.profiles,
		Notifier:              f.notifier,
		Metrics:               f.metrics,
		ProfileFetchThreshold: threshold,
		CallTimeout:           time.Second,
	})
	t.Cleanup(f.m.Close)
	return f
}

func sessionFor(id string) *Session {
	return &Session{User: Identity{ID: id, Email: id + "@example.com"}, ExpiresAt: time.Now().Add(time.Hour)}
}

func settle(t *testing.T, m *Manager) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.AwaitSettled(ctx)
	if err != nil {
		t.Fatalf("manager did not settle: %v", err)
	}
	return s
}

// signInEmitting makes SignInWithPassword emit SIGNED_IN for id, the way
// real backends do before returning.
func (f *managerFixture) signInEmitting(id string) {
	f.backend.signInFn = func(context.Context, string, string) error {
		f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor(id)})
		return nil
	}
}

// --- Tests ---

func TestManager_InitialStateIsLoading(t *testing.T) {
	f := newManagerFixture(t, 0)

	s := f.m.State()
	if !s.Loading || s.User != nil {
		t.Errorf("expected loading with no user, got %+v", s)
	}
}

func TestManager_StartWithoutSession(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()

	s := settle(t, f.m)
	if s.User != nil {
		t.Errorf("expected no user, got %+v", s.User)
	}
	if n := f.profiles.fetches.Load(); n != 0 {
		t.Errorf("expected no profile fetch, got %d", n)
	}
}

func TestManager_StartWithSessionMergesProfile(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	f.m.Start()

	s := settle(t, f.m)
	if s.User == nil || s.User.ID != "u1" || s.User.FirstName != "Ada" || s.User.Email != "u1@example.com" {
		t.Fatalf("expected merged user, got %+v", s.User)
	}
}

func TestManager_StartSessionCheckErrorSettles(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return nil, errors.New("redis down")
	}
	f.m.Start()

	s := settle(t, f.m)
	if s.User != nil {
		t.Errorf("expected no user, got %+v", s.User)
	}
}

func TestManager_ProfileFailureFallsBackToIdentity(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	f.profiles.fetchFn = func(context.Context, string) (*Profile, error) {
		return nil, errors.New("no rows")
	}
	f.m.Start()

	s := settle(t, f.m)
	if s.User == nil || s.User.ID != "u1" || s.User.FirstName != "" {
		t.Fatalf("expected minimal identity, got %+v", s.User)
	}
	if s.ProfileFetchAttempts != 1 {
		t.Errorf("expected 1 failed attempt, got %d", s.ProfileFetchAttempts)
	}
}

func TestManager_SignInSetsUserFromEvent(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)
	f.signInEmitting("u1")

	if err := f.m.SignIn(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	s := settle(t, f.m)
	if s.User == nil || s.User.ID != "u1" || s.User.FirstName != "Ada" {
		t.Fatalf("expected signed-in user, got %+v", s.User)
	}
	if n, _ := f.notifier.last(); n.Kind != NoticeSuccess || n.Message != "Signed in successfully" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestManager_SignInFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"auth error", &AuthError{Message: "Invalid login credentials", Status: 400}, "Invalid login credentials"},
		{"auth error without message", &AuthError{Status: 400}, "Error signing in"},
		{"transport error", errors.New("dial tcp: refused"), "Error signing in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t, 0)
			f.m.Start()
			settle(t, f.m)
			f.backend.signInFn = func(context.Context, string, string) error { return tt.err }

			err := f.m.SignIn(context.Background(), "x@example.com", "bad")

			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
			if authErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", authErr.Message, tt.wantMsg)
			}
			if n, _ := f.notifier.last(); n.Kind != NoticeError || n.Message != tt.wantMsg {
				t.Errorf("unexpected notice %+v", n)
			}
			s := f.m.State()
			if s.Loading || s.User != nil {
				t.Errorf("expected settled without user, got %+v", s)
			}
		})
	}
}

func TestManager_SignUpUpdatesProfile(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)

	var gotUpdate ProfileUpdate
	var gotMeta Metadata
	f.backend.signUpFn = func(_ context.Context, email, _ string, meta Metadata) (*Identity, error) {
		gotMeta = meta
		return &Identity{ID: "u7", Email: email}, nil
	}
	f.profiles.updateFn = func(_ context.Context, userID string, update ProfileUpdate) error {
		if userID != "u7" {
			t.Errorf("update for %q, want u7", userID)
		}
		gotUpdate = update
		return nil
	}

	if err := f.m.SignUp(context.Background(), "r@example.com", "longpassword", "Ravi", "Kumar"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if gotMeta.FirstName != "Ravi" || gotUpdate.LastName != "Kumar" {
		t.Errorf("names not forwarded: meta=%+v update=%+v", gotMeta, gotUpdate)
	}
	if n, _ := f.notifier.last(); n.Message != "Account created successfully" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestManager_SignUpProfileUpdateFailureIsSwallowed(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)
	f.profiles.updateFn = func(context.Context, string, ProfileUpdate) error {
		return errors.New("permission denied")
	}

	if err := f.m.SignUp(context.Background(), "r@example.com", "longpassword", "Ravi", "Kumar"); err != nil {
		t.Fatalf("expected success despite profile failure, got %v", err)
	}
	if f.m.State().Loading {
		t.Error("expected settled state")
	}
}

func TestManager_SignUpWithoutIdentity(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)
	f.backend.signUpFn = func(context.Context, string, string, Metadata) (*Identity, error) {
		return nil, nil
	}

	err := f.m.SignUp(context.Background(), "r@example.com", "longpassword", "Ravi", "Kumar")

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != ErrNoIdentity.Message {
		t.Fatalf("expected no-identity AuthError, got %v", err)
	}
	if !errors.Is(err, ErrNoIdentity) {
		t.Error("expected ErrNoIdentity in chain")
	}
	if got, _ := f.notifier.last(); got.Kind != NoticeError || got.Message != ErrNoIdentity.Message {
		t.Errorf("expected the no-identity notice, got %+v", got)
	}
}

func TestManager_SignOutClearsUserAndNavigatesHome(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	f.m.Start()
	settle(t, f.m)

	ctx, nav := WithNavigation(context.Background())
	if err := f.m.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	s := f.m.State()
	if s.Loading || s.User != nil {
		t.Errorf("expected signed out, got %+v", s)
	}
	if nav.Target() != HomePath {
		t.Errorf("navigation = %q, want %q", nav.Target(), HomePath)
	}
	if n, _ := f.notifier.last(); n.Message != "Signed out successfully" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestManager_SignOutFailureKeepsUser(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	f.m.Start()
	settle(t, f.m)
	f.backend.signOutFn = func(context.Context) error { return errors.New("timeout") }

	ctx, nav := WithNavigation(context.Background())
	err := f.m.SignOut(ctx)

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != "Error signing out" {
		t.Fatalf("expected AuthError, got %v", err)
	}
	s := f.m.State()
	if s.Loading || s.User == nil || s.User.ID != "u1" {
		t.Errorf("expected user kept, got %+v", s)
	}
	if nav.Target() != "" {
		t.Errorf("expected no navigation, got %q", nav.Target())
	}
}

func TestManager_SignedOutDuringFetchWins(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.profiles.fetchFn = func(context.Context, string) (*Profile, error) {
		close(entered)
		<-release
		return &Profile{FirstName: "Stale"}, nil
	}

	f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor("u1")})
	<-entered
	f.backend.emit(Event{Type: EventSignedOut})
	close(release)

	stale := f.metrics.StaleCompletions.WithLabelValues("signed_in")
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(stale) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("stale completion was never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := f.m.State()
	if s.Loading || s.User != nil {
		t.Errorf("expected signed-out state to survive, got %+v", s)
	}
}

func TestManager_NewerSignInSupersedesOlder(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)

	f.profiles.fetchFn = func(_ context.Context, userID string) (*Profile, error) {
		return &Profile{FirstName: userID}, nil
	}

	f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor("u1")})
	f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor("u2")})

	s := settle(t, f.m)
	if s.User == nil || s.User.ID != "u2" || s.User.FirstName != "u2" {
		t.Fatalf("expected u2 to win, got %+v", s.User)
	}
}

func TestManager_BreakerStopsProfileQueries(t *testing.T) {
	f := newManagerFixture(t, 2)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	f.profiles.fetchFn = func(context.Context, string) (*Profile, error) {
		return nil, errors.New("boom")
	}
	f.m.Start()
	settle(t, f.m)
	ctx := context.Background()

	if err := f.m.GetProfile(ctx); err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got := f.m.State().ProfileFetchAttempts; got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}

	if err := f.m.GetProfile(ctx); err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if n := f.profiles.fetches.Load(); n != 2 {
		t.Errorf("expected breaker to skip the third query, got %d fetches", n)
	}
	s := f.m.State()
	if s.User == nil || s.User.ID != "u1" || s.ProfileFetchAttempts != 2 {
		t.Errorf("expected minimal identity at threshold, got %+v", s)
	}

	// A different user starts with a fresh breaker.
	f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor("u2")})
	s = settle(t, f.m)
	if n := f.profiles.fetches.Load(); n != 3 {
		t.Errorf("expected a fetch for the new user, got %d fetches", n)
	}
	if s.User == nil || s.User.ID != "u2" || s.ProfileFetchAttempts != 1 {
		t.Errorf("unexpected state after user change: %+v", s)
	}
}

func TestManager_BreakerResetsOnSuccess(t *testing.T) {
	f := newManagerFixture(t, 3)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}
	var fail atomic.Bool
	fail.Store(true)
	f.profiles.fetchFn = func(context.Context, string) (*Profile, error) {
		if fail.Load() {
			return nil, errors.New("flaky")
		}
		return &Profile{FirstName: "Ada"}, nil
	}
	f.m.Start()
	settle(t, f.m)

	fail.Store(false)
	if err := f.m.GetProfile(context.Background()); err != nil {
		t.Fatalf("get profile: %v", err)
	}
	s := f.m.State()
	if s.ProfileFetchAttempts != 0 || s.User.FirstName != "Ada" {
		t.Errorf("expected reset breaker and full profile, got %+v", s)
	}
}

func TestManager_GetProfileWithoutSession(t *testing.T) {
	f := newManagerFixture(t, 0)
	f.m.Start()
	settle(t, f.m)

	err := f.m.GetProfile(context.Background())

	var stateErr *StateError
	if !errors.As(err, &stateErr) || !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected StateError(no session), got %v", err)
	}
	if f.m.State().Loading {
		t.Error("expected settled state after error")
	}
}

func TestManager_SubscribeReceivesChanges(t *testing.T) {
	f := newManagerFixture(t, 0)

	var mu sync.Mutex
	var states []State
	settled := make(chan struct{}, 8)
	unsubscribe := f.m.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
		if !s.Loading {
			settled <- struct{}{}
		}
	})

	f.m.Start()
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("no settled notification")
	}

	mu.Lock()
	first := states[0]
	mu.Unlock()
	if !first.Loading {
		t.Errorf("expected the first notification to be loading, got %+v", first)
	}

	unsubscribe()
	unsubscribe()
	f.backend.emit(Event{Type: EventSignedIn, Session: sessionFor("u1")})
	settle(t, f.m)

	mu.Lock()
	defer mu.Unlock()
	for _, s := range states {
		if s.User != nil {
			t.Errorf("received a notification after unsubscribe: %+v", s)
		}
	}
}

func TestManager_CloseStopsGoroutineAndListener(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend()
	m := NewManager(ManagerConfig{ClientID: "c", Backend: backend, Profiles: &fakeProfiles{}})
	m.Start()
	settle(t, m)
	if backend.listeners() != 1 {
		t.Fatalf("expected one listener, got %d", backend.listeners())
	}

	m.Close()
	m.Close()

	if backend.listeners() != 0 {
		t.Errorf("expected listener removed, got %d", backend.listeners())
	}
}

func TestManager_CloseBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend()
	m := NewManager(ManagerConfig{ClientID: "c", Backend: backend, Profiles: &fakeProfiles{}})
	m.Close()
	m.Start()

	if backend.listeners() != 0 {
		t.Errorf("expected no listener on a closed manager")
	}
}

func TestManager_CloseRacingStartReleasesListener(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		m := NewManager(ManagerConfig{ClientID: "c", Backend: backend, Profiles: &fakeProfiles{}})
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Start()
		}()
		go func() {
			defer wg.Done()
			m.Close()
		}()
	}
	wg.Wait()

	if n := backend.listeners(); n != 0 {
		t.Errorf("expected every listener released, got %d", n)
	}
}
