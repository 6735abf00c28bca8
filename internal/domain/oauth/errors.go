package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates the callback state is missing or does not match the stored one.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrMissingCode indicates the callback carried no authorization code.
	ErrMissingCode = errors.New("oauth: no code provided")
)

// AuthorizationDeniedError carries the error the provider put on the redirect.
type AuthorizationDeniedError struct {
	Code        string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// ProviderAuthError is returned when the token endpoint rejects a grant.
type ProviderAuthError struct {
	Status      int
	Code        string
	Description string
}

func (e *ProviderAuthError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("oauth: token request failed: %s", e.Description)
	case e.Code != "":
		return fmt.Sprintf("oauth: token request failed: %s", e.Code)
	default:
		return fmt.Sprintf("oauth: token request failed: status=%d", e.Status)
	}
}
