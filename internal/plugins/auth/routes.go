package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tailormade/internal/middleware"
)

// RegisterRoutes sets up the account routes on the given Echo instance.
// Login and registration are public; the dashboard sits behind the guard,
// which is exported separately for other plugins' route groups.
//
// POST endpoints are rate-limited per IP: 10 login attempts and 5
// registrations per minute.
func RegisterRoutes(e *echo.Echo, h *Handler, guard echo.MiddlewareFunc, limiter *middleware.RateLimiter) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, limiter.Limit("login", 10, time.Minute))
	e.GET("/register", h.RegisterForm)
	e.POST("/register", h.Register, limiter.Limit("register", 5, time.Minute))
	e.POST("/logout", h.Logout)

	e.GET("/dashboard", h.Dashboard, guard)

	e.GET("/api/v1/session", h.Session)
}
