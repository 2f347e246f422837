package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tailormade/internal/apperror"
	"github.com/keyxmakerx/tailormade/internal/middleware"
	"github.com/keyxmakerx/tailormade/internal/sanitize"
	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// DashboardPath is the default destination after signing in.
const DashboardPath = "/dashboard"

// categoryRedirectInfo is shown on the login page when an anonymous
// visitor picked a collection.
const categoryRedirectInfo = "Please sign in to explore our collections."

// maxNameLength bounds first and last names.
const maxNameLength = 100

// CollectionSource lists the categories linked from the dashboard.
type CollectionSource interface {
	Collections() []pages.CollectionLink
}

// Handler handles HTTP requests for the account pages (login, register,
// logout, dashboard). Handlers are thin: they bind the request, call the
// client's manager, and render the response.
type Handler struct {
	registry    *Registry
	redirects   RedirectStore
	collections CollectionSource
	settleWait  time.Duration
}

// NewHandler creates a new account handler. settleWait bounds how long
// login and registration wait for the session to settle before redirecting.
func NewHandler(registry *Registry, redirects RedirectStore, collections CollectionSource, settleWait time.Duration) *Handler {
	return &Handler{
		registry:    registry,
		redirects:   redirects,
		collections: collections,
		settleWait:  settleWait,
	}
}

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	// A client that is already signed in goes straight to the dashboard.
	if h.settledUser(c) != nil {
		return c.Redirect(http.StatusSeeOther, DashboardPath)
	}

	var info string
	if c.QueryParam("redirect") == "category" {
		info = categoryRedirectInfo
	}
	return middleware.Render(c, http.StatusOK, pages.LoginPage("", info))
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	req.Email = strings.TrimSpace(req.Email)

	mgr := h.registry.Manager(EnsureClientID(c))
	ctx := c.Request().Context()

	// The manager has already queued the error notice; the form is shown
	// again with the email kept.
	if err := mgr.SignIn(ctx, req.Email, req.Password); err != nil {
		return middleware.Render(c, http.StatusOK, pages.LoginPage(req.Email, ""))
	}

	return h.redirectAfterAuth(c, mgr)
}

// RegisterForm renders the registration page (GET /register).
func (h *Handler) RegisterForm(c echo.Context) error {
	if h.settledUser(c) != nil {
		return c.Redirect(http.StatusSeeOther, DashboardPath)
	}
	return middleware.Render(c, http.StatusOK, pages.RegisterPage(pages.RegisterValues{}, ""))
}

// Register processes the registration form submission (POST /register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	req.FirstName = sanitize.Name(req.FirstName, maxNameLength)
	req.LastName = sanitize.Name(req.LastName, maxNameLength)
	req.Email = strings.TrimSpace(req.Email)

	values := pages.RegisterValues{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}

	if validationErr := validateRegisterRequest(&req); validationErr != "" {
		return middleware.Render(c, http.StatusOK, pages.RegisterPage(values, validationErr))
	}

	mgr := h.registry.Manager(EnsureClientID(c))
	if err := mgr.SignUp(c.Request().Context(), req.Email, req.Password, req.FirstName, req.LastName); err != nil {
		return middleware.Render(c, http.StatusOK, pages.RegisterPage(values, ""))
	}

	return h.redirectAfterAuth(c, mgr)
}

// Logout signs the client out (POST /logout). On failure the user stays
// signed in and is sent back to the dashboard, where the error notice shows.
func (h *Handler) Logout(c echo.Context) error {
	mgr := h.registry.Manager(EnsureClientID(c))

	ctx, nav := WithNavigation(c.Request().Context())
	if err := mgr.SignOut(ctx); err != nil {
		return redirect(c, DashboardPath)
	}

	dest := nav.Target()
	if dest == "" {
		dest = HomePath
	}
	return redirect(c, dest)
}

// Dashboard renders the signed-in landing page (GET /dashboard). It
// refreshes the profile first so the greeting uses the latest name.
func (h *Handler) Dashboard(c echo.Context) error {
	mgr := GetManager(c)
	if mgr == nil {
		return apperror.NewUnauthorized("authentication required", nil)
	}

	if err := mgr.GetProfile(c.Request().Context()); err != nil {
		slog.Warn("dashboard profile refresh failed", slog.Any("error", err))
	}

	user := mgr.State().User
	if user == nil {
		// Signed out while the profile was refreshing.
		return redirect(c, LoginPath)
	}
	return middleware.Render(c, http.StatusOK, pages.Dashboard(user.FirstName, h.collections.Collections()))
}

// sessionResponse is the JSON shape of GET /api/v1/session.
type sessionResponse struct {
	Loading              bool  `json:"loading"`
	Authenticated        bool  `json:"authenticated"`
	User                 *User `json:"user"`
	ProfileFetchAttempts int   `json:"profile_fetch_attempts"`
}

// Session reports the client's current state without waiting (GET /api/v1/session).
func (h *Handler) Session(c echo.Context) error {
	s := h.registry.Manager(EnsureClientID(c)).State()
	return c.JSON(http.StatusOK, sessionResponse{
		Loading:              s.Loading,
		Authenticated:        s.Authenticated(),
		User:                 s.User,
		ProfileFetchAttempts: s.ProfileFetchAttempts,
	})
}

// --- Helpers ---

// settledUser returns the signed-in user if the client's state has already
// settled. It never blocks.
func (h *Handler) settledUser(c echo.Context) *User {
	id, ok := ClientID(c)
	if !ok {
		return nil
	}
	mgr, ok := h.registry.Lookup(id)
	if !ok {
		return nil
	}
	s := mgr.State()
	if !s.Authenticated() {
		return nil
	}
	return s.User
}

// redirectAfterAuth waits for the SIGNED_IN handling to settle, then sends
// the client to the page it originally asked for, or the dashboard. A
// backend that requires email confirmation leaves no user; those clients
// go to the login page.
func (h *Handler) redirectAfterAuth(c echo.Context, mgr *Manager) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.settleWait)
	defer cancel()

	state, err := mgr.AwaitSettled(ctx)
	if err != nil {
		slog.Warn("session did not settle after sign in", slog.Any("error", err))
	}
	if err == nil && state.User == nil {
		return redirect(c, LoginPath)
	}

	dest := DashboardPath
	target, err := h.redirects.Consume(c.Request().Context(), mgr.ClientID())
	if err != nil {
		slog.Warn("failed to read redirect target", slog.Any("error", err))
	}
	if SafeRedirectPath(target) {
		dest = target
	}
	return redirect(c, dest)
}

// redirect sends a 303, or HX-Redirect for HTMX requests.
func redirect(c echo.Context, path string) error {
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", path)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, path)
}

// --- Validation helpers ---

// validateRegisterRequest performs basic server-side validation on the
// registration form. Returns an error message or empty string.
func validateRegisterRequest(req *RegisterRequest) string {
	if req.FirstName == "" {
		return "first name is required"
	}
	if req.LastName == "" {
		return "last name is required"
	}
	if req.Email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "please enter a valid email address"
	}
	if req.Password == "" {
		return "password is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	if req.Confirm != req.Password {
		return "passwords do not match"
	}
	if req.Terms == "" {
		return "you must accept the terms to create an account"
	}
	return ""
}
