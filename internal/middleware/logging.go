// Package middleware provides HTTP middleware for the storefront's Echo
// server. Global middleware is registered in internal/app/routes.go; the
// rate limiter is attached per route by the plugins.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// ClientIDFunc resolves the browser client id for log lines. Set by the app
// at startup; nil disables the field.
var ClientIDFunc func(echo.Context) string

// RequestLogger returns middleware that logs every HTTP request with
// structured fields. The client id is included when the request carries
// one, so a visitor's requests can be followed across the session lifecycle.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			// Log after the request completes so we have the status code.
			latency := time.Since(start)
			req := c.Request()
			res := c.Response()

			// Build structured log fields.
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", latency),
				slog.String("remote_ip", c.RealIP()),
			}

			if ClientIDFunc != nil {
				if id := ClientIDFunc(c); id != "" {
					attrs = append(attrs, slog.String("client_id", id))
				}
			}

			// Include query string if present.
			if req.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", req.URL.RawQuery))
			}

			// Log at different levels based on status code.
			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request",
				attrs...,
			)

			return err
		}
	}
}
