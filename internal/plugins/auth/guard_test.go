package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func TestEvaluate(t *testing.T) {
	user := &User{ID: "u1"}
	tests := []struct {
		name  string
		state State
		ready bool
		want  Phase
	}{
		{"loading", State{Loading: true}, true, PhaseChecking},
		{"loading with stale user", State{Loading: true, User: user}, true, PhaseChecking},
		{"settled but not ready", State{User: user}, false, PhaseChecking},
		{"no user", State{}, true, PhaseUnauthenticated},
		{"user", State{User: user}, true, PhaseAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.state, tt.ready); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeSource implements StateSource with function fields.
type fakeSource struct {
	stateFn func() State
	awaitFn func(ctx context.Context) (State, error)
}

func (f *fakeSource) State() State { return f.stateFn() }

func (f *fakeSource) AwaitSettled(ctx context.Context) (State, error) { return f.awaitFn(ctx) }

func TestGuardResolve_Authenticated(t *testing.T) {
	settled := State{User: &User{ID: "u1"}}
	src := &fakeSource{
		stateFn: func() State { return settled },
		awaitFn: func(context.Context) (State, error) { return settled, nil },
	}

	phase, s := NewGuard(5*time.Millisecond, time.Second, nil).Resolve(context.Background(), src)
	if phase != PhaseAuthenticated || s.User.ID != "u1" {
		t.Errorf("got %v %+v", phase, s)
	}
}

func TestGuardResolve_TimesOutWhileLoading(t *testing.T) {
	src := &fakeSource{
		stateFn: func() State { return State{Loading: true} },
		awaitFn: func(ctx context.Context) (State, error) {
			<-ctx.Done()
			return State{Loading: true}, ctx.Err()
		},
	}

	start := time.Now()
	phase, _ := NewGuard(0, 30*time.Millisecond, nil).Resolve(context.Background(), src)
	if phase != PhaseChecking {
		t.Errorf("expected checking, got %v", phase)
	}
	if time.Since(start) > time.Second {
		t.Error("resolve did not honor the wait timeout")
	}
}

func TestGuardResolve_WorkStartedDuringDelayWaitsAgain(t *testing.T) {
	var reads atomic.Int32
	src := &fakeSource{
		// The first re-read after the delay sees new work; later reads
		// see it settled with no user.
		stateFn: func() State {
			if reads.Add(1) == 1 {
				return State{Loading: true}
			}
			return State{}
		},
		awaitFn: func(context.Context) (State, error) { return State{}, nil },
	}

	phase, _ := NewGuard(time.Millisecond, time.Second, nil).Resolve(context.Background(), src)
	if phase != PhaseUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", phase)
	}
	if reads.Load() != 2 {
		t.Errorf("expected a second pass, got %d reads", reads.Load())
	}
}

// --- RequireSession ---

const testClientID = "6f1c2a8e-4b7d-4c1e-9a3f-2d5e8b7c6a10"

type guardFixture struct {
	e         *echo.Echo
	backend   *fakeBackend
	profiles  *fakeProfiles
	registry  *Registry
	redirects RedirectStore
	flashes   *FlashStore
	mr        *miniredis.Miniredis
}

func newGuardFixture(t *testing.T, waitTimeout time.Duration) *guardFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &guardFixture{
		e:         echo.New(),
		backend:   newFakeBackend(),
		profiles:  &fakeProfiles{},
		redirects: NewRedirectStore(rdb, time.Hour),
		flashes:   NewFlashStore(rdb, time.Minute),
		mr:        mr,
	}
	f.registry = NewRegistry(func(clientID string) *Manager {
		return NewManager(ManagerConfig{
			ClientID:    clientID,
			Backend:     f.backend,
			Profiles:    f.profiles,
			Notifier:    f.flashes.For(clientID),
			CallTimeout: time.Second,
		})
	}, time.Hour, nil)
	t.Cleanup(f.registry.Close)

	guard := RequireSession(f.registry, NewGuard(time.Millisecond, waitTimeout, nil), f.redirects)
	protected := func(c echo.Context) error {
		return c.String(http.StatusOK, "hello "+GetUser(c).DisplayName())
	}
	f.e.GET("/dashboard", protected, guard)
	f.e.POST("/dashboard", protected, guard)
	f.e.GET("/api/v1/orders", protected, guard)
	return f
}

func (f *guardFixture) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: testClientID})
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestRequireSession_Authenticated(t *testing.T) {
	f := newGuardFixture(t, time.Second)
	f.backend.currentSessionFn = func(context.Context) (*Session, error) {
		return sessionFor("u1"), nil
	}

	rec := f.do(http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello Ada" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireSession_UnauthenticatedRemembersPath(t *testing.T) {
	f := newGuardFixture(t, time.Second)

	rec := f.do(http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != LoginPath {
		t.Fatalf("expected 303 to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	target, err := f.redirects.Consume(context.Background(), testClientID)
	if err != nil || target != "/dashboard" {
		t.Errorf("expected remembered /dashboard, got %q, %v", target, err)
	}
}

func TestRequireSession_UnauthenticatedPostIsNotRemembered(t *testing.T) {
	f := newGuardFixture(t, time.Second)

	rec := f.do(http.MethodPost, "/dashboard", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if target, _ := f.redirects.Consume(context.Background(), testClientID); target != "" {
		t.Errorf("expected nothing remembered, got %q", target)
	}
}

func TestRequireSession_UnauthenticatedVariants(t *testing.T) {
	f := newGuardFixture(t, time.Second)

	rec := f.do(http.MethodGet, "/api/v1/orders", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("API: expected 401, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/dashboard", map[string]string{"HX-Request": "true"})
	if rec.Code != http.StatusNoContent || rec.Header().Get("HX-Redirect") != LoginPath {
		t.Errorf("HTMX: expected HX-Redirect, got %d %q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
}

func TestRequireSession_CheckingRendersLoading(t *testing.T) {
	f := newGuardFixture(t, 30*time.Millisecond)
	f.backend.currentSessionFn = func(ctx context.Context) (*Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	rec := f.do(http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `http-equiv="refresh"`) {
		t.Errorf("expected loading page, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Location") != "" {
		t.Error("checking must not redirect")
	}

	rec = f.do(http.MethodGet, "/api/v1/orders", nil)
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Errorf("API: expected 503 with Retry-After, got %d", rec.Code)
	}
}

func TestRequireSession_IssuesClientCookie(t *testing.T) {
	f := newGuardFixture(t, time.Second)

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if !strings.Contains(rec.Header().Get("Set-Cookie"), ClientCookieName+"=") {
		t.Errorf("expected client cookie, got %q", rec.Header().Get("Set-Cookie"))
	}
	if f.registry.Len() != 1 {
		t.Errorf("expected one manager, got %d", f.registry.Len())
	}
}
