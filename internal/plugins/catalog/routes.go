package catalog

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the catalog routes. The landing page is public;
// collections and products sit behind the session guard. The guard is
// attached per route rather than through a root group so unknown paths
// still reach the not-found page.
func RegisterRoutes(e *echo.Echo, h *Handler, guard echo.MiddlewareFunc) {
	e.GET("/", h.Landing)

	e.GET("/collections", h.Index, guard)
	e.GET("/collections/:category", h.Show, guard)
	e.GET("/products/:id", h.Product, guard)
}
