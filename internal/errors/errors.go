// Package errors carries the user-facing error types shared across the
// configuration layer and the CLI. Provider-local fetch errors live in
// pkg/provider; these types wrap what surfaces to a human.
package errors

import (
	"fmt"
	"strings"
)

// UserError is an error meant to be shown to the user with enough context to
// act on it.
type UserError struct {
	Message    string
	Details    string
	Suggestion string
	Err        error
}

func (e UserError) Error() string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}
	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}
	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error { return e.Err }

// ConfigError is a configuration problem with the field that caused it.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// BackendError wraps a backend failure with a suggestion keyed off the
// backend type and the error text.
func BackendError(backend, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s backend error during %s", backend, operation),
		Suggestion: backendSuggestion(backend, err),
		Err:        err,
	}
}

func backendSuggestion(backend string, err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(backend, "vault"):
		if strings.Contains(errStr, "connection refused") {
			return "Check that the vault server is running and the configured address is reachable"
		}
		if strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "invalid token") {
			return "Your vault token may be expired. Renew it and update the provider configuration"
		}
	case strings.Contains(backend, "aws"):
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "AccessDenied") {
			return "Configure AWS credentials ('aws configure' or AWS_PROFILE) and check IAM permissions"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") {
			return "Verify the secret name and region"
		}
	case strings.Contains(backend, "gcp"):
		if strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "Unauthenticated") {
			return "Check GOOGLE_APPLICATION_CREDENTIALS and Secret Manager IAM permissions"
		}
	case strings.Contains(backend, "azure"):
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") {
			return "Check the Azure identity configuration and Key Vault access policy"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and the provider's timeout_ms setting"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and provider configuration"
	}
	return ""
}
