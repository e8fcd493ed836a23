package provider

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an update did not succeed.
type FailureKind string

const (
	// KindTransport covers connection errors, timeouts and body read errors.
	KindTransport FailureKind = "transport"

	// KindHTTPStatus is a non-2xx response.
	KindHTTPStatus FailureKind = "http_status"

	// KindProviderError is a well-formed response that reports errors.
	KindProviderError FailureKind = "provider_error"

	// KindMalformed is a 2xx response that could not be interpreted.
	KindMalformed FailureKind = "malformed_response"
)

// Failure describes a failed update.
type Failure struct {
	Kind FailureKind

	// StatusCode is set for KindHTTPStatus.
	StatusCode int

	// Code and Description are set for KindProviderError. Code is kept
	// verbatim as the provider sent it.
	Code        string
	Description string

	// Err is the underlying error, if any.
	Err error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("%s: HTTP %d", f.Kind, f.StatusCode)
	case KindProviderError:
		if f.Code != "" {
			return fmt.Sprintf("%s: %s (code %s)", f.Kind, f.Description, f.Code)
		}
		return fmt.Sprintf("%s: %s", f.Kind, f.Description)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// TransportFailure wraps a network-level error.
func TransportFailure(err error) *Failure {
	return &Failure{Kind: KindTransport, Err: err}
}

// StatusFailure reports a non-2xx HTTP status.
func StatusFailure(code int) *Failure {
	return &Failure{Kind: KindHTTPStatus, StatusCode: code}
}

// ProviderFailure reports an error returned by the provider itself.
func ProviderFailure(code, description string) *Failure {
	return &Failure{Kind: KindProviderError, Code: code, Description: description}
}

// MalformedFailure reports a response that could not be parsed.
func MalformedFailure(err error) *Failure {
	return &Failure{Kind: KindMalformed, Err: err}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required field.
func ErrConfigMissing(field string) error {
	return &ConfigError{Field: field, Message: "required but not set"}
}

// ErrConfigInvalid creates an error for an invalid field value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{Field: field, Value: value, Message: message}
}
