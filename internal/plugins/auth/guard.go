package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tailormade/internal/metrics"
	"github.com/keyxmakerx/tailormade/internal/middleware"
	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// LoginPath is where unauthenticated visitors of guarded pages are sent.
const LoginPath = "/login"

// Phase is the route guard's decision for one guarded request.
type Phase int

const (
	// PhaseChecking: the session state has not settled yet. Nothing is
	// rendered and no redirect is issued.
	PhaseChecking Phase = iota
	// PhaseUnauthenticated: settled with no user.
	PhaseUnauthenticated
	// PhaseAuthenticated: settled with a user.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "checking"
	}
}

// Evaluate maps a session state to a guard phase. ready is false until the
// settle delay after loading cleared has elapsed.
func Evaluate(s State, ready bool) Phase {
	if s.Loading || !ready {
		return PhaseChecking
	}
	if s.User == nil {
		return PhaseUnauthenticated
	}
	return PhaseAuthenticated
}

// StateSource is what the guard reads. *Manager implements it.
type StateSource interface {
	State() State
	AwaitSettled(ctx context.Context) (State, error)
}

// Guard resolves the phase of guarded requests.
type Guard struct {
	settleDelay time.Duration
	waitTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewGuard creates a guard. settleDelay is the pause taken after the
// manager reports loading=false; waitTimeout bounds the whole wait.
func NewGuard(settleDelay, waitTimeout time.Duration, m *metrics.Metrics) *Guard {
	return &Guard{settleDelay: settleDelay, waitTimeout: waitTimeout, metrics: m}
}

// Resolve waits for src to settle, pauses for the settle delay, and
// re-reads the state. Work that starts during the pause sends it back to
// waiting. If nothing settles within the wait timeout the phase is Checking.
func (g *Guard) Resolve(ctx context.Context, src StateSource) (Phase, State) {
	ctx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	for {
		s, err := src.AwaitSettled(ctx)
		if err != nil {
			return Evaluate(s, false), s
		}

		if g.settleDelay > 0 {
			timer := time.NewTimer(g.settleDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				s = src.State()
				return Evaluate(s, false), s
			}
		}

		s = src.State()
		if s.Loading {
			continue
		}
		return Evaluate(s, true), s
	}
}

// Context keys for the guarded request.
const (
	contextKeyUser    = "auth_user"
	contextKeyManager = "auth_manager"
)

// RequireSession returns middleware that gates a route group on the
// client's settled session state:
//   - still checking: render the loading page (API: 503)
//   - settled, no user: remember the requested path and redirect to /login
//   - settled, user: store the user in the context and continue
func RequireSession(registry *Registry, guard *Guard, redirects RedirectStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := EnsureClientID(c)
			mgr := registry.Manager(clientID)

			phase, state := guard.Resolve(c.Request().Context(), mgr)
			guard.metrics.GuardDecision(phase.String())

			switch phase {
			case PhaseChecking:
				return renderChecking(c)

			case PhaseUnauthenticated:
				req := c.Request()
				if req.Method == http.MethodGet {
					if err := redirects.Save(req.Context(), clientID, req.URL.Path); err != nil {
						slog.Warn("failed to store redirect target",
							slog.String("path", req.URL.Path),
							slog.Any("error", err),
						)
					}
				}
				return handleUnauthenticated(c)
			}

			c.Set(contextKeyUser, state.User)
			c.Set(contextKeyManager, mgr)
			return next(c)
		}
	}
}

// renderChecking answers a request whose session state is still loading.
func renderChecking(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	if isAPIRequest(c) {
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error":   "loading",
			"message": "session state is still loading",
		})
	}
	middleware.KeepNotices(c)
	return middleware.Render(c, http.StatusOK, pages.LoadingPage())
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients. 303 See Other
// replaces the guarded URL instead of adding a history entry.
func handleUnauthenticated(c echo.Context) error {
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}

	if isHTMXRequest(c) {
		c.Response().Header().Set("HX-Redirect", LoginPath)
		return c.NoContent(http.StatusNoContent)
	}

	return c.Redirect(http.StatusSeeOther, LoginPath)
}

// --- Exported getters for other plugins ---

// GetUser returns the user stored by RequireSession, or nil outside a
// guarded route.
func GetUser(c echo.Context) *User {
	u, ok := c.Get(contextKeyUser).(*User)
	if !ok {
		return nil
	}
	return u
}

// GetManager returns the client's manager stored by RequireSession.
func GetManager(c echo.Context) *Manager {
	m, ok := c.Get(contextKeyManager).(*Manager)
	if !ok {
		return nil
	}
	return m
}

// --- Helpers ---

// isAPIRequest returns true if the request targets the /api/ path.
func isAPIRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return len(path) >= 4 && path[:4] == "/api"
}

// isHTMXRequest returns true if the request was made by HTMX.
func isHTMXRequest(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}
