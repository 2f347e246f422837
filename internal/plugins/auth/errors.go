package auth

import (
	"errors"
	"fmt"
)

// ErrNoSession is the cause of a StateError raised when an operation needs
// a backend session and none exists.
var ErrNoSession = errors.New("no session found")

// ErrNoIdentity is returned when the backend accepts a sign-up but reports
// no created identity. Its message is what the user is shown.
var ErrNoIdentity = &AuthError{Message: "Sign up failed - no user returned"}

// AuthError is a credential failure reported by the backend (bad password,
// duplicate account, ...). Message is safe to show to the user.
type AuthError struct {
	Message string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// QueryError is a profile read or update failure. It is recovered inside
// the manager and never shown to the user.
type QueryError struct {
	Op     string
	UserID string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("profile %s for %s: %v", e.Op, e.UserID, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// StateError reports an operation invoked without the state it needs.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// userMessage extracts the text shown in an error notification.
func userMessage(err error, fallback string) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return fallback
}
