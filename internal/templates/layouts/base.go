package layouts

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// SiteName is shown in the header and page titles.
const SiteName = "TailorMade"

// Base wraps body in the storefront shell: head, header navigation, the
// notices drained for this render, and the footer.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := NewWriter(w)
		hw.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		hw.Raw(`<title>`)
		if title != "" {
			hw.Text(title + " | ")
		}
		hw.Text(SiteName)
		hw.Raw(`</title></head><body>`)

		header(ctx, hw)
		notices(ctx, hw)

		hw.Raw(`<main class="container">`)
		hw.Component(ctx, body)
		hw.Raw(`</main>`)

		hw.Raw(`<footer class="site-footer"><p>&copy; `)
		hw.Text(SiteName)
		hw.Raw(` - Custom tailored clothing, made to measure.</p></footer>`)
		hw.Raw(`</body></html>`)
		return hw.Err()
	})
}

// Bare renders a page without navigation or notices. extraHead is trusted
// markup added to the head. Used by the loading page.
func Bare(title, extraHead string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := NewWriter(w)
		hw.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.Raw(extraHead)
		hw.Raw(`<title>`)
		hw.Text(title + " | " + SiteName)
		hw.Raw(`</title></head><body>`)
		hw.Component(ctx, body)
		hw.Raw(`</body></html>`)
		return hw.Err()
	})
}

func header(ctx context.Context, hw *Writer) {
	active := GetActivePath(ctx)

	hw.Raw(`<header class="site-header"><a class="brand" href="/">`)
	hw.Text(SiteName)
	hw.Raw(`</a><nav>`)
	navLink(hw, active, "/collections", "Collections")

	if IsAuthenticated(ctx) {
		navLink(hw, active, "/dashboard", "Dashboard")
		hw.Raw(`<span class="user-name">`)
		hw.Text(GetUserName(ctx))
		hw.Raw(`</span>`)
		hw.Raw(`<form method="post" action="/logout" class="inline">`)
		CSRFField(ctx, hw)
		hw.Raw(`<button type="submit">Sign out</button></form>`)
	} else {
		navLink(hw, active, "/login", "Sign in")
		navLink(hw, active, "/register", "Create account")
	}
	hw.Raw(`</nav></header>`)
}

func navLink(hw *Writer, active, href, label string) {
	hw.Raw(`<a`)
	hw.Attr("href", href)
	if active == href || strings.HasPrefix(active, href+"/") {
		hw.Raw(` class="active" aria-current="page"`)
	}
	hw.Raw(`>`)
	hw.Text(label)
	hw.Raw(`</a>`)
}

func notices(ctx context.Context, hw *Writer) {
	list := GetNotices(ctx)
	if len(list) == 0 {
		return
	}
	hw.Raw(`<div class="notices" role="status">`)
	for _, n := range list {
		hw.Raw(`<div`)
		hw.Attr("class", "notice notice-"+n.Kind)
		hw.Raw(`>`)
		hw.Text(n.Message)
		hw.Raw(`</div>`)
	}
	hw.Raw(`</div>`)
}

// CSRFField renders the hidden CSRF input for forms.
func CSRFField(ctx context.Context, hw *Writer) {
	hw.Raw(`<input type="hidden" name="csrf_token"`)
	hw.Attr("value", GetCSRFToken(ctx))
	hw.Raw(`>`)
}
