package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tailormade/internal/metrics"
	"github.com/keyxmakerx/tailormade/internal/middleware"
	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
	"github.com/keyxmakerx/tailormade/internal/plugins/catalog"
	"github.com/keyxmakerx/tailormade/internal/templates/layouts"
)

// healthTimeout bounds the dependency pings behind /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. It registers the layout
// injector and the operational endpoints, then delegates to each plugin's
// route registration function.
//
// This is the single place where all routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	middleware.LayoutInjector = a.injectLayout

	// --- Operational ---

	e.GET("/healthz", a.healthz)
	if a.Config.Metrics.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.MetricsRegistry)))
	}

	// --- Plugin Routes ---

	guard := auth.RequireSession(a.Clients, a.guard, a.redirects)

	catalogService := catalog.NewStaticCatalog()
	catalog.RegisterRoutes(e, catalog.NewHandler(catalogService), guard)

	accountHandler := auth.NewHandler(a.Clients, a.redirects, catalogService, a.Config.Auth.GuardWaitTimeout)
	auth.RegisterRoutes(e, accountHandler, guard, middleware.NewRateLimiter(a.Redis))
}

// injectLayout copies the CSRF token, the signed-in user and any queued
// notices into the render context. Only a running manager is consulted;
// rendering a page never starts a session check.
func (a *App) injectLayout(c echo.Context, ctx context.Context) context.Context {
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)

	clientID, ok := auth.ClientID(c)
	if !ok {
		return ctx
	}

	if mgr, found := a.Clients.Lookup(clientID); found {
		if s := mgr.State(); s.Authenticated() {
			ctx = layouts.SetIsAuthenticated(ctx, true)
			ctx = layouts.SetUserName(ctx, s.User.DisplayName())
			ctx = layouts.SetUserEmail(ctx, s.User.Email)
		}
	}

	if middleware.NoticesKept(c) {
		return ctx
	}
	pending, err := a.flashes.Drain(c.Request().Context(), clientID)
	if err != nil {
		slog.Warn("draining notices", slog.String("client_id", clientID), slog.Any("error", err))
		return ctx
	}
	if len(pending) > 0 {
		notices := make([]layouts.Notice, 0, len(pending))
		for _, n := range pending {
			notices = append(notices, layouts.Notice{Kind: string(n.Kind), Message: n.Message})
		}
		ctx = layouts.SetNotices(ctx, notices)
	}
	return ctx
}

// healthz reports whether Redis (and MariaDB, when the local backend is in
// use) answer a ping.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		slog.Warn("health check: redis", slog.Any("error", err))
		status["redis"] = "unavailable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if a.DB != nil {
		status["database"] = "ok"
		if err := a.DB.PingContext(ctx); err != nil {
			slog.Warn("health check: database", slog.Any("error", err))
			status["database"] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}
