package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the origins that may read API responses.
	// ["*"] allows any origin but disables credentials.
	// Example: ["https://shop.tailormade.example", "http://localhost:3000"]
	AllowedOrigins []string

	// AllowCredentials lets browsers send the client cookie cross-origin,
	// which GET /api/v1/session needs to report anything but "signed out".
	AllowCredentials bool

	// PathPrefix limits the middleware to matching paths. Empty means all.
	PathPrefix string
}

// corsExposedHeaders are readable by cross-origin scripts. Retry-After
// accompanies the 503 sent while a session check is still running.
var corsExposedHeaders = strings.Join([]string{
	echo.HeaderRetryAfter,
	"HX-Redirect",
}, ", ")

// CORS returns middleware for the read-only JSON API: a storefront widget
// on another origin polls the session endpoint. Pages are same-origin and
// pass through untouched.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	// Browsers refuse credentialed responses for a wildcard origin; echoing
	// any origin with credentials would hand the session to every site.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS wildcard origin configured; credentials will not be allowed")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !strings.HasPrefix(req.URL.Path, cfg.PathPrefix) {
				return next(c)
			}
			if !allowAll && !allowed[origin] {
				// No headers; the browser blocks the read.
				return next(c)
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if cfg.AllowCredentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			if req.Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, "GET, OPTIONS")
				h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, HX-Request")
				h.Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set(echo.HeaderAccessControlExposeHeaders, corsExposedHeaders)
			return next(c)
		}
	}
}
