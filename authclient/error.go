package authclient

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotFound         = errors.New("not found")
	ErrAuthentication   = errors.New("authentication error")
	ErrInvalidOptions   = errors.New("invalid client options")
)

// AuthenticationError is returned when the provider redirects back with an
// OAuth error response.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenticationError struct {
	// Code is the "error" parameter, for example "access_denied".
	Code string

	// Description is the optional "error_description" parameter.
	Description string

	// State is the "state" parameter of the response.
	State string

	// AppState is the application state of the login attempt, when the
	// transaction for State could be found.
	AppState interface{}
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Is allows errors.Is(err, ErrAuthentication) to match.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}
