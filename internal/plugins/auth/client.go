package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ClientCookieName identifies the browser client. Every piece of session
// state (manager, tokens, redirect target, notices) is keyed by its value.
const ClientCookieName = "tailormade_client"

// clientCookieMaxAge keeps the client id across browser restarts so a
// backend session outlives the tab.
const clientCookieMaxAge = 30 * 24 * time.Hour

// contextKeyClientID caches the resolved id for the rest of the request.
const contextKeyClientID = "auth_client_id"

// secureCookies controls the Secure flag on the client cookie. The app sets
// it from the configured base URL at startup.
var secureCookies = false

// SetSecureCookies turns the Secure cookie flag on or off.
func SetSecureCookies(secure bool) {
	secureCookies = secure
}

// EnsureClientID returns the request's client id, issuing a new cookie
// when none (or a malformed one) was sent.
func EnsureClientID(c echo.Context) string {
	if id, ok := c.Get(contextKeyClientID).(string); ok && id != "" {
		return id
	}

	if id, ok := readClientCookie(c); ok {
		c.Set(contextKeyClientID, id)
		return id
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	c.Set(contextKeyClientID, id)
	return id
}

// ClientID returns the request's client id without issuing a cookie.
func ClientID(c echo.Context) (string, bool) {
	if id, ok := c.Get(contextKeyClientID).(string); ok && id != "" {
		return id, true
	}
	return readClientCookie(c)
}

func readClientCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(ClientCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}
