// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// event bus, client registry, Echo instance) and wires the auth backend
// selected by configuration into the account and catalog plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tailormade/internal/apperror"
	"github.com/keyxmakerx/tailormade/internal/backend/events"
	"github.com/keyxmakerx/tailormade/internal/backend/hosted"
	"github.com/keyxmakerx/tailormade/internal/backend/local"
	"github.com/keyxmakerx/tailormade/internal/config"
	"github.com/keyxmakerx/tailormade/internal/metrics"
	"github.com/keyxmakerx/tailormade/internal/middleware"
	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// janitorInterval is how often idle client managers are swept.
const janitorInterval = time.Minute

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool. Nil when the hosted backend is used.
	DB *sql.DB

	// Redis is shared by sessions, notices, redirect targets, rate limits
	// and the event bus.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Metrics are the storefront collectors; MetricsRegistry serves them.
	Metrics         *metrics.Metrics
	MetricsRegistry *prometheus.Registry

	// Bus carries auth events between server instances.
	Bus *events.RedisBus

	// Clients holds one session manager per browser client.
	Clients *auth.Registry

	provider    auth.BackendProvider
	profilesFor func(clientID string) auth.ProfileStore
	flashes     *auth.FlashStore
	redirects   auth.RedirectStore
	guard       *auth.Guard
}

// New creates a new App instance with the given dependencies, starts the
// event bus and the client registry janitor, and configures the Echo
// server with global middleware and error handling. db may be nil when
// cfg selects the hosted backend.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	middleware.TrustedProxies(e, cfg.Server.TrustedProxies)
	auth.SetSecureCookies(cfg.SecureCookies())

	reg, m := metrics.NewRegistry()

	app := &App{
		Config:          cfg,
		DB:              db,
		Redis:           rdb,
		Echo:            e,
		Metrics:         m,
		MetricsRegistry: reg,
		Bus:             events.NewRedisBus(rdb),
		flashes:         auth.NewFlashStore(rdb, cfg.Auth.FlashTTL),
		redirects:       auth.NewRedirectStore(rdb, cfg.Auth.RedirectTTL),
		guard:           auth.NewGuard(cfg.Auth.GuardSettleDelay, cfg.Auth.GuardWaitTimeout, m),
	}

	if err := app.setupBackend(); err != nil {
		return nil, err
	}

	if err := app.Bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting event bus: %w", err)
	}

	app.Clients = auth.NewRegistry(app.newManager, cfg.Auth.ClientIdleTTL, m)
	app.Clients.StartJanitor(janitorInterval)

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// setupBackend builds the auth backend provider and profile store that
// AUTH_BACKEND selects.
func (a *App) setupBackend() error {
	switch a.Config.Auth.Backend {
	case config.BackendHosted:
		client, err := hosted.NewClient(hosted.Config{
			BaseURL:    a.Config.Auth.HostedURL,
			AnonKey:    a.Config.Auth.HostedAnonKey,
			ServiceKey: a.Config.Auth.HostedServiceKey,
			Timeout:    a.Config.Auth.BackendCallTimeout,
		})
		if err != nil {
			return fmt.Errorf("creating hosted auth client: %w", err)
		}
		provider := hosted.NewProvider(client, hosted.NewTokenStore(a.Redis, a.Config.Auth.SessionTTL), a.Bus)
		a.provider = provider
		a.profilesFor = provider.ProfilesFor

	default:
		if a.DB == nil {
			return errors.New("local auth backend requires a database")
		}
		a.provider = local.NewProvider(
			local.NewUserRepository(a.DB),
			local.NewSessionStore(a.Redis, a.Config.Auth.SessionTTL),
			a.Bus,
		)
		profiles := local.NewProfileRepository(a.DB)
		a.profilesFor = func(string) auth.ProfileStore { return profiles }
	}

	slog.Info("auth backend ready", slog.String("backend", a.Config.Auth.Backend))
	return nil
}

// newManager is the registry's factory: one manager per browser client,
// bound to that client's backend view and notice queue.
func (a *App) newManager(clientID string) *auth.Manager {
	return auth.NewManager(auth.ManagerConfig{
		ClientID:              clientID,
		Backend:               a.provider.ForClient(clientID),
		Profiles:              a.profilesFor(clientID),
		Notifier:              a.flashes.For(clientID),
		Metrics:               a.Metrics,
		ProfileFetchThreshold: a.Config.Auth.ProfileFetchThreshold,
		CallTimeout:           a.Config.Auth.BackendCallTimeout,
	})
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	middleware.ClientIDFunc = func(c echo.Context) string {
		id, _ := auth.ClientID(c)
		return id
	}
	a.Echo.Use(middleware.RequestLogger())

	a.Echo.Use(middleware.SecurityHeaders(a.Config.SecureCookies()))

	// CORS -- only the JSON API is read cross-origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.Server.CORSOrigins,
		AllowCredentials: true,
		PathPrefix:       "/api/",
	}))

	// CSRF -- double-submit cookie pattern on all state-changing requests.
	a.Echo.Use(middleware.CSRF(a.Config.SecureCookies()))
}

// Close stops the client managers and the event bus. Call after the HTTP
// server has shut down.
func (a *App) Close() {
	a.Clients.Close()
	if err := a.Bus.Close(); err != nil {
		slog.Warn("closing event bus", slog.Any("error", err))
	}
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses, and renders error pages for
// browser requests or JSON for API requests.
//
// For HTMX requests that hit errors, HX-Retarget and HX-Reswap make the
// error page replace the full body instead of a partial target.
//
// For 401 errors on browser requests, we redirect to the login page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}

	case errors.As(err, &echoErr):
		// Echo's own errors (404 from the router, 403 from CSRF, recovered panics).
		code = echoErr.Code
		message = defaultErrorMessage(code)
		if msg, ok := echoErr.Message.(string); ok && code < http.StatusInternalServerError {
			message = msg
		}
		if code >= http.StatusInternalServerError {
			slog.Error("server error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}

	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	var writeErr error
	defer func() {
		if writeErr != nil {
			slog.Warn("failed to write error response", slog.Any("error", writeErr))
		}
	}()

	// API requests always get JSON.
	if isAPIRequest(c) {
		writeErr = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	if middleware.IsHTMX(c) {
		if code == http.StatusUnauthorized {
			c.Response().Header().Set("HX-Redirect", auth.LoginPath)
			writeErr = c.NoContent(http.StatusNoContent)
			return
		}
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	if code == http.StatusUnauthorized {
		writeErr = c.Redirect(http.StatusSeeOther, auth.LoginPath)
		return
	}

	if code == http.StatusNotFound {
		writeErr = middleware.Render(c, code, pages.NotFoundPage())
		return
	}
	writeErr = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "We couldn't find the page you're looking for."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// isAPIRequest returns true if the request is targeting the API (JSON response expected).
func isAPIRequest(c echo.Context) bool {
	return len(c.Request().URL.Path) >= 4 && c.Request().URL.Path[:4] == "/api"
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting TailorMade server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
