package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/tailormade/internal/templates/layouts"
)

// LoginPage renders the sign-in form. info is an optional banner shown
// above the form.
func LoginPage(email, info string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section class="auth-card"><h1>Sign in</h1>`)
		if info != "" {
			hw.Raw(`<div class="notice notice-info">`)
			hw.Text(info)
			hw.Raw(`</div>`)
		}
		hw.Raw(`<form method="post" action="/login">`)
		layouts.CSRFField(ctx, hw)
		hw.Raw(`<label for="email">Email</label>`)
		hw.Raw(`<input id="email" name="email" type="email" autocomplete="email" required`)
		hw.Attr("value", email)
		hw.Raw(`>`)
		hw.Raw(`<label for="password">Password</label>`)
		hw.Raw(`<input id="password" name="password" type="password" autocomplete="current-password" required>`)
		hw.Raw(`<button type="submit">Sign in</button></form>`)
		hw.Raw(`<p>New here? <a href="/register">Create an account</a></p></section>`)
		return hw.Err()
	})
	return layouts.Base("Sign in", body)
}

// RegisterPage renders the registration form, echoing values and an
// optional validation error.
func RegisterPage(values RegisterValues, errMsg string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := layouts.NewWriter(w)
		hw.Raw(`<section class="auth-card"><h1>Create your account</h1>`)
		if errMsg != "" {
			hw.Raw(`<div class="notice notice-error" role="alert">`)
			hw.Text(errMsg)
			hw.Raw(`</div>`)
		}
		hw.Raw(`<form method="post" action="/register">`)
		layouts.CSRFField(ctx, hw)
		textInput(hw, "first_name", "First name", "text", "given-name", values.FirstName)
		textInput(hw, "last_name", "Last name", "text", "family-name", values.LastName)
		textInput(hw, "email", "Email", "email", "email", values.Email)
		textInput(hw, "password", "Password", "password", "new-password", "")
		textInput(hw, "confirm", "Confirm password", "password", "new-password", "")
		hw.Raw(`<label class="checkbox"><input type="checkbox" name="terms" value="on"> `)
		hw.Raw(`I agree to the terms of service and privacy policy</label>`)
		hw.Raw(`<button type="submit">Create account</button></form>`)
		hw.Raw(`<p>Already have an account? <a href="/login">Sign in</a></p></section>`)
		return hw.Err()
	})
	return layouts.Base("Create account", body)
}

func textInput(hw *layouts.Writer, name, label, typ, autocomplete, value string) {
	hw.Raw(`<label`)
	hw.Attr("for", name)
	hw.Raw(`>`)
	hw.Text(label)
	hw.Raw(`</label><input required`)
	hw.Attr("id", name)
	hw.Attr("name", name)
	hw.Attr("type", typ)
	hw.Attr("autocomplete", autocomplete)
	if value != "" {
		hw.Attr("value", value)
	}
	hw.Raw(`>`)
}

// Dashboard greets the signed-in user and links the collections.
func Dashboard(firstName string, collections []CollectionLink) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		name := firstName
		if name == "" {
			name = "User"
		}

		hw := layouts.NewWriter(w)
		hw.Raw(`<section class="dashboard"><h1>Welcome, `)
		hw.Text(name)
		hw.Raw(`</h1><p>Choose a collection to start your custom order.</p>`)
		collectionGrid(hw, collections, false)
		hw.Raw(`</section>`)
		return hw.Err()
	})
	return layouts.Base("Dashboard", body)
}
