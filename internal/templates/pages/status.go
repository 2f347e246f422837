package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/tailormade/internal/templates/layouts"
)

// LoadingPage is shown while the client's session state is being checked.
// It reloads itself once a second until the guard can decide.
func LoadingPage() templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<div class="loading" role="status" aria-live="polite">`)
		hw.Raw(`<div class="spinner"></div><p>Loading your profile...</p></div>`)
		return hw.Err()
	})
	return layouts.Bare("Loading", `<meta http-equiv="refresh" content="1">`, body)
}

// ErrorPage renders a full error page for the given status code.
func ErrorPage(code int, message string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section class="error-page"><h1>`)
		hw.Text(strconv.Itoa(code))
		hw.Raw(`</h1><p>`)
		hw.Text(message)
		hw.Raw(`</p><a class="button" href="/">Return to Home</a></section>`)
		return hw.Err()
	})
	return layouts.Base("Error", body)
}

// NotFoundPage renders the 404 page.
func NotFoundPage() templ.Component {
	return ErrorPage(404, "We couldn't find the page you're looking for.")
}
