package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// csrfTokenLength is the number of random bytes in a token (64 hex chars).
	csrfTokenLength = 32

	csrfCookieName = "tailormade_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"

	// csrfContextKey holds the request's token for the layout injector.
	csrfContextKey = "csrf_token"
)

// CSRF protects the login, registration and logout forms with a
// double-submit cookie: every page carries the cookie's token in a hidden
// field (or HTMX sends it as X-CSRF-Token) and mutating requests must echo
// it back. secure marks the cookie Secure when the site is served over TLS.
//
// The JSON API under /api/ only serves GETs and is skipped.
func CSRF(secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			token, err := ensureCSRFToken(c, secure)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
			}
			c.Set(csrfContextKey, token)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(csrfFormField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
			}
			return next(c)
		}
	}
}

// ensureCSRFToken returns the token from the cookie, issuing a new cookie
// when the browser has none. A freshly issued token can never match a
// submitted form, so a first-visit POST is rejected.
func ensureCSRFToken(c echo.Context, secure bool) (string, error) {
	if cookie, err := c.Request().Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // HTMX reads it to set the header.
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// GetCSRFToken returns the token CSRF stored for this request, or "".
func GetCSRFToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}
