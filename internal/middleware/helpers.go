package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout data (signed-in user, CSRF token, pending
// notices) from the Echo context into the Go context that Templ components
// read. Registered once at startup in app/routes.go so this package never
// imports plugin types.
var LayoutInjector func(echo.Context, context.Context) context.Context

// IsHTMX returns true if the current request was initiated by HTMX and is not
// a boosted navigation. Boosted requests expect full pages; plain HTMX
// requests expect HX-Redirect instead of a 303.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// Render writes a Templ component to the response with the given status code.
// The LayoutInjector, if registered, runs first.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()

	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// keepNoticesKey marks a response that must not consume pending notices.
const keepNoticesKey = "layout_keep_notices"

// KeepNotices tells the layout injector to leave pending notices queued,
// for pages such as the loading screen that do not display them.
func KeepNotices(c echo.Context) {
	c.Set(keepNoticesKey, true)
}

// NoticesKept reports whether KeepNotices was called for this request.
func NoticesKept(c echo.Context) bool {
	kept, _ := c.Get(keepNoticesKey).(bool)
	return kept
}
