package provider

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError indicates the named secret does not exist at a backend.
// The resolver treats it as provider-local and tries the next backend
// without penalizing this one's health.
type NotFoundError struct {
	Provider string
	Name     Name
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("secret %s not found at %s", e.Name, e.Provider)
}

// UnauthorizedError indicates the credentials used to reach a backend were
// rejected. The backend stays unhealthy until reconfigured.
type UnauthorizedError struct {
	Provider string
	Message  string
}

func (e UnauthorizedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s rejected credentials", e.Provider)
	}
	return fmt.Sprintf("backend %s rejected credentials: %s", e.Provider, e.Message)
}

// UnavailableError indicates a transient network or service failure.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Provider, e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }

// MalformedError indicates the backend returned data that cannot be parsed
// as a secret. For fallback purposes it behaves like Unavailable, but the
// resolver logs it at error severity since it usually means misconfiguration
// on the store side.
type MalformedError struct {
	Provider string
	Name     Name
	Reason   string
}

func (e MalformedError) Error() string {
	return fmt.Sprintf("backend %s returned malformed data for %s: %s", e.Provider, e.Name, e.Reason)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ua UnauthorizedError
	return errors.As(err, &ua)
}

// IsUnavailable reports whether err is an UnavailableError. Context
// deadline/cancellation on a backend call also counts as unavailable.
func IsUnavailable(err error) bool {
	var uv UnavailableError
	if errors.As(err, &uv) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsMalformed reports whether err is a MalformedError.
func IsMalformed(err error) bool {
	var mf MalformedError
	return errors.As(err, &mf)
}
