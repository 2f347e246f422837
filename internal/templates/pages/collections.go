package pages

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/tailormade/internal/templates/layouts"
)

// CollectionsIndex lists every category.
func CollectionsIndex(collections []CollectionLink) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section><h1>Our Collections</h1>`)
		collectionGrid(hw, collections, false)
		hw.Raw(`</section>`)
		return hw.Err()
	})
	return layouts.Base("Collections", body)
}

// CollectionPage lists the products of one category.
func CollectionPage(category CollectionLink, products []ProductView) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section><h1>`)
		hw.Text(category.Name)
		hw.Raw(`</h1><p>Explore our custom `)
		hw.Text(strings.ToLower(category.Name))
		hw.Raw(` collection tailored to your preferences</p>`)

		if len(products) == 0 {
			hw.Raw(`<p class="empty">New pieces are on the cutting table. Check back soon.</p>`)
		}
		hw.Raw(`<div class="grid">`)
		for _, p := range products {
			hw.Raw(`<a class="card"`)
			hw.Attr("href", "/products/"+strconv.Itoa(p.ID))
			hw.Raw(`>`)
			productImage(hw, p)
			hw.Raw(`<h3>`)
			hw.Text(p.Name)
			hw.Raw(`</h3><p class="price">`)
			hw.Text(p.Price)
			hw.Raw(`</p><p>`)
			hw.Text(p.Description)
			hw.Raw(`</p></a>`)
		}
		hw.Raw(`</div><p><a href="/dashboard">Return to Dashboard</a></p></section>`)
		return hw.Err()
	})
	return layouts.Base(category.Name, body)
}

// ProductPage renders one product.
func ProductPage(p ProductView, category CollectionLink) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<article class="product">`)
		productImage(hw, p)
		hw.Raw(`<div><h1>`)
		hw.Text(p.Name)
		hw.Raw(`</h1><p class="price">`)
		hw.Text(p.Price)
		hw.Raw(`</p><p>`)
		hw.Text(p.Description)
		hw.Raw(`</p>`)
		if len(p.Colors) > 0 {
			hw.Raw(`<h2>Available colours</h2><ul class="colors">`)
			for _, c := range p.Colors {
				hw.Raw(`<li>`)
				hw.Text(c)
				hw.Raw(`</li>`)
			}
			hw.Raw(`</ul>`)
		}
		hw.Raw(`<p><a`)
		hw.Attr("href", category.Href())
		hw.Raw(`>Back to `)
		hw.Text(category.Name)
		hw.Raw(`</a></p></div></article>`)
		return hw.Err()
	})
	return layouts.Base(p.Name, body)
}

func productImage(hw *layouts.Writer, p ProductView) {
	if p.ImageURL == "" {
		return
	}
	hw.Raw(`<img loading="lazy"`)
	hw.Attr("src", p.ImageURL)
	hw.Attr("alt", p.Name)
	hw.Raw(`>`)
}
