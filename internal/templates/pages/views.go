// Package pages holds the storefront's page components. Pages take plain
// view structs so this package never imports plugin types.
package pages

// CollectionLink is a category tile on the landing page and dashboard.
type CollectionLink struct {
	Slug        string
	Name        string
	Description string
	ImageURL    string
}

// Href returns the category page URL.
func (l CollectionLink) Href() string {
	return "/collections/" + l.Slug
}

// ProductView is one product card or detail page.
type ProductView struct {
	ID          int
	Name        string
	Price       string
	Description string
	Colors      []string
	ImageURL    string
}

// RegisterValues are the echoed form fields on a failed registration.
type RegisterValues struct {
	FirstName string
	LastName  string
	Email     string
}
