package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/tailormade/internal/templates/layouts"
)

// Landing renders the public home page.
func Landing(collections []CollectionLink) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section class="hero"><h1>Custom Tailored Clothing, Made For You</h1>`)
		hw.Raw(`<p>Every garment cut to your measurements from the finest fabrics.</p>`)
		if layouts.IsAuthenticated(ctx) {
			hw.Raw(`<a class="button" href="/dashboard">Go to your dashboard</a>`)
		} else {
			hw.Raw(`<a class="button" href="/register">Create an account</a> `)
			hw.Raw(`<a class="button secondary" href="/login">Sign in</a>`)
			hw.Raw(`<p class="hint">Please sign in to personalize your fit!</p>`)
		}
		hw.Raw(`</section>`)

		hw.Raw(`<section class="collections"><h2>Our Collections</h2>`)
		collectionGrid(hw, collections, !layouts.IsAuthenticated(ctx))
		hw.Raw(`</section>`)

		hw.Raw(`<section class="process"><h2>How it works</h2><ol>`)
		hw.Raw(`<li>Precise measurements down to the millimeter.</li>`)
		hw.Raw(`<li>Choose from fabrics sourced from premium mills.</li>`)
		hw.Raw(`<li>Handcrafted by skilled artisans.</li>`)
		hw.Raw(`</ol></section>`)
		return hw.Err()
	})
	return layouts.Base("", body)
}

// collectionGrid renders category tiles. Anonymous visitors are routed
// through the login page with an explanatory notice.
func collectionGrid(hw *layouts.Writer, collections []CollectionLink, viaLogin bool) {
	hw.Raw(`<div class="grid">`)
	for _, c := range collections {
		href := c.Href()
		if viaLogin {
			href = "/login?redirect=category"
		}
		hw.Raw(`<a class="card"`)
		hw.Attr("href", href)
		hw.Raw(`>`)
		if c.ImageURL != "" {
			hw.Raw(`<img loading="lazy"`)
			hw.Attr("src", c.ImageURL)
			hw.Attr("alt", c.Name)
			hw.Raw(`>`)
		}
		hw.Raw(`<h3>`)
		hw.Text(c.Name)
		hw.Raw(`</h3><p>`)
		hw.Text(c.Description)
		hw.Raw(`</p></a>`)
	}
	hw.Raw(`</div>`)
}
