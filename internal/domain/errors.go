package domain

import (
	"errors"
	"fmt"
	"net"
)

// ConfigError reports a missing or malformed required setting.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config: %s is required", e.Key)
	}
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

// NewConfigError builds a ConfigError for a missing key.
func NewConfigError(key string) *ConfigError {
	return &ConfigError{Key: key}
}

// TransportError wraps network failures and timeouts on outbound calls.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a deadline.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
