package catalog

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tailormade/internal/apperror"
	"github.com/keyxmakerx/tailormade/internal/middleware"
	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// Handler serves the collection pages.
type Handler struct {
	service CatalogService
}

// NewHandler creates a catalog handler.
func NewHandler(service CatalogService) *Handler {
	return &Handler{service: service}
}

// Landing renders the public home page (GET /).
func (h *Handler) Landing(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, pages.Landing(h.service.Collections()))
}

// Index lists all collections (GET /collections).
func (h *Handler) Index(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, pages.CollectionsIndex(h.service.Collections()))
}

// Show lists one collection's products (GET /collections/:category).
func (h *Handler) Show(c echo.Context) error {
	slug := c.Param("category")

	category, err := h.service.Category(slug)
	if err != nil {
		return err
	}
	products, err := h.service.ProductsIn(slug)
	if err != nil {
		return err
	}

	views := make([]pages.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, p.view())
	}
	return middleware.Render(c, http.StatusOK, pages.CollectionPage(category.link(), views))
}

// Product renders one product (GET /products/:id).
func (h *Handler) Product(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return apperror.NewNotFound("product not found")
	}

	product, err := h.service.Product(id)
	if err != nil {
		return err
	}
	category, err := h.service.Category(product.Category)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, pages.ProductPage(product.view(), category.link()))
}
