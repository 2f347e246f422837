// Package catalog serves the read-only clothing collections. Products are
// a fixed in-memory list; browsing them requires a signed-in client.
package catalog

import (
	"fmt"

	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// Category is one collection, e.g. shirts.
type Category struct {
	Slug        string
	Name        string
	Description string
	ImageURL    string
}

// Product is a tailorable garment.
type Product struct {
	ID          int
	Name        string
	PriceCents  int64
	Description string
	Category    string
	Colors      []string
	ImageURL    string
}

// Price formats the price in dollars.
func (p Product) Price() string {
	return fmt.Sprintf("$%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

// link converts a category to its page view.
func (c Category) link() pages.CollectionLink {
	return pages.CollectionLink{
		Slug:        c.Slug,
		Name:        c.Name,
		Description: c.Description,
		ImageURL:    c.ImageURL,
	}
}

// view converts a product to its page view.
func (p Product) view() pages.ProductView {
	return pages.ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price(),
		Description: p.Description,
		Colors:      p.Colors,
		ImageURL:    p.ImageURL,
	}
}
