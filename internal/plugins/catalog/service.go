package catalog

import (
	"github.com/keyxmakerx/tailormade/internal/apperror"
	"github.com/keyxmakerx/tailormade/internal/templates/pages"
)

// CatalogService defines read access to the collections.
type CatalogService interface {
	Categories() []Category
	Category(slug string) (*Category, error)
	ProductsIn(slug string) ([]Product, error)
	Product(id int) (*Product, error)

	// Collections lists the categories as page links.
	Collections() []pages.CollectionLink
}

// staticCatalog is the default CatalogService backed by fixed data.
type staticCatalog struct {
	categories []Category
	products   []Product
}

// NewStaticCatalog creates a CatalogService over the built-in collections.
func NewStaticCatalog() CatalogService {
	return &staticCatalog{categories: defaultCategories, products: defaultProducts}
}

// Categories returns every category in display order.
func (s *staticCatalog) Categories() []Category {
	out := make([]Category, len(s.categories))
	copy(out, s.categories)
	return out
}

// Category looks up a category by slug.
func (s *staticCatalog) Category(slug string) (*Category, error) {
	for _, c := range s.categories {
		if c.Slug == slug {
			c := c
			return &c, nil
		}
	}
	return nil, apperror.NewNotFound("collection not found")
}

// ProductsIn returns the products of a category.
func (s *staticCatalog) ProductsIn(slug string) ([]Product, error) {
	if _, err := s.Category(slug); err != nil {
		return nil, err
	}
	var out []Product
	for _, p := range s.products {
		if p.Category == slug {
			out = append(out, p)
		}
	}
	return out, nil
}

// Product looks up a product by id.
func (s *staticCatalog) Product(id int) (*Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, apperror.NewNotFound("product not found")
}

// Collections lists the categories as page links.
func (s *staticCatalog) Collections() []pages.CollectionLink {
	links := make([]pages.CollectionLink, 0, len(s.categories))
	for _, c := range s.categories {
		links = append(links, c.link())
	}
	return links
}

const unsplash = "https://images.unsplash.com/"

var defaultCategories = []Category{
	{
		Slug:        "shirts",
		Name:        "Shirts",
		Description: "Tailor-made shirts for every occasion",
		ImageURL:    unsplash + "photo-1603252109303-2751441dd157?auto=format&fit=crop&w=987&q=80",
	},
	{
		Slug:        "pants",
		Name:        "Pants",
		Description: "Custom-fit pants for ultimate comfort",
		ImageURL:    unsplash + "photo-1624378439575-d8705ad7ae80?auto=format&fit=crop&w=988&q=80",
	},
	{
		Slug:        "sherwani",
		Name:        "Sherwani",
		Description: "Traditional elegance with modern fit",
		ImageURL:    unsplash + "photo-1585486386884-46be29d80766?auto=format&fit=crop&w=987&q=80",
	},
}

var defaultProducts = []Product{
	{
		ID:          1,
		Name:        "Classic Oxford Shirt",
		PriceCents:  8999,
		Description: "Premium cotton oxford shirt with a modern fit, cut from Egyptian cotton for breathability.",
		Category:    "shirts",
		Colors:      []string{"White", "Blue", "Black", "Pink"},
		ImageURL:    unsplash + "photo-1603252109303-2751441dd157?auto=format&fit=crop&w=987&q=80",
	},
	{
		ID:          2,
		Name:        "Slim Fit Dress Shirt",
		PriceCents:  9999,
		Description: "Tailored slim fit dress shirt in a cotton blend with a slight stretch.",
		Category:    "shirts",
		Colors:      []string{"White", "Blue", "Black", "Navy Blue"},
		ImageURL:    unsplash + "photo-1598033129183-c4f50c736f10?auto=format&fit=crop&w=1025&q=80",
	},
	{
		ID:          3,
		Name:        "Designer Slim Pants",
		PriceCents:  12999,
		Description: "Slim fit pants with a tapered leg in a wool blend.",
		Category:    "pants",
		Colors:      []string{"Black", "Navy", "Gray", "Khaki"},
		ImageURL:    unsplash + "photo-1624378439575-d8705ad7ae80?auto=format&fit=crop&w=988&q=80",
	},
	{
		ID:          4,
		Name:        "Luxury Wedding Sherwani",
		PriceCents:  59999,
		Description: "Handcrafted sherwani in silk with gold thread embroidery.",
		Category:    "sherwani",
		Colors:      []string{"Gold", "Maroon", "Navy", "Royal Blue"},
		ImageURL:    unsplash + "photo-1585486386884-46be29d80766?auto=format&fit=crop&w=987&q=80",
	},
}
