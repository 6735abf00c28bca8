package sleep

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized signals a 401 from the provider: the access token is absent or expired.
	ErrUnauthorized = errors.New("sleep: provider rejected access token")
	// ErrNoSnapshot signals that no scored record was available to normalize.
	ErrNoSnapshot = errors.New("sleep: no snapshot available")
)

// ProviderAPIError is a non-2xx, non-401 answer from the provider's data API.
type ProviderAPIError struct {
	Status      int
	Description string
}

func (e *ProviderAPIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("sleep: provider api status=%d: %s", e.Status, e.Description)
	}
	return fmt.Sprintf("sleep: provider api status=%d", e.Status)
}

// ValidationError identifies the first field that broke the payload contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UpstreamError is a failed answer from the analysis service.
type UpstreamError struct {
	Status int
	Reason string
}

func (e *UpstreamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("analysis: upstream status=%d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("analysis: upstream status=%d", e.Status)
}
