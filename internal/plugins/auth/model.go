// Package auth owns the storefront's session lifecycle: one Manager per
// browser client keeps the displayed identity consistent with the remote
// auth backend, and the RequireSession guard gates protected pages on the
// manager's settled state.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User is the identity shown to the storefront: the backend identity merged
// with the profile record. FirstName/LastName are empty when the profile
// could not be read.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the first name, falling back to "User".
func (u *User) DisplayName() string {
	if u == nil || u.FirstName == "" {
		return "User"
	}
	return u.FirstName
}

// Identity is the core identity the auth backend knows about.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a backend-confirmed session. Tokens stay inside the backend
// implementations; the manager only ever sees the identity.
type Session struct {
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Profile holds the supplementary attributes stored apart from the identity.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ProfileUpdate is the set of profile fields written after sign-up.
type ProfileUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Metadata is attached to a new backend identity at sign-up.
type Metadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// EventType names an auth state change pushed by the backend.
type EventType string

// Auth events. The manager reacts to SIGNED_IN and SIGNED_OUT only.
const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is one auth state change. Session is nil for SIGNED_OUT.
type Event struct {
	Type    EventType `json:"type"`
	Session *Session  `json:"session,omitempty"`
}

// State is a snapshot of a client's session state.
type State struct {
	User                 *User `json:"user"`
	Loading              bool  `json:"loading"`
	ProfileFetchAttempts int   `json:"profile_fetch_attempts"`
}

// Authenticated reports whether a settled user is present.
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	Email     string `form:"email"`
	Password  string `form:"password"`
	Confirm   string `form:"confirm"`
	Terms     string `form:"terms"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}
