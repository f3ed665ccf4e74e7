// Package errors provides the error types used throughout the game database
// manager. They separate transport failures from decoding failures and from
// structurally-unexpected payloads, so callers can decide per error kind
// whether to abort a reconciliation pass or treat a record as unavailable.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// As is an alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors.
var (
	// ErrConnectivity indicates a transport-level failure or an HTTP error status.
	ErrConnectivity = errors.New("connectivity failure")

	// ErrDecode indicates a payload that could not be decoded as expected.
	ErrDecode = errors.New("decode failure")

	// ErrPermission indicates an authentication or permission failure,
	// typically a redirect to a login page.
	ErrPermission = errors.New("permission denied")

	// ErrBadShape indicates a payload that decoded but is missing expected keys.
	ErrBadShape = errors.New("unexpected payload shape")

	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ConnectivityError represents a failure to reach a remote endpoint, either a
// transport-level error (DNS, connection refused) or a non-2xx HTTP status.
type ConnectivityError struct {
	URL        string
	StatusCode int // 0 for transport-level failures
	Err        error
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to download data from %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to download data from %s: %v", e.URL, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// NewConnectivityError creates a ConnectivityError for a transport failure.
func NewConnectivityError(url string, err error) *ConnectivityError {
	return &ConnectivityError{URL: url, Err: err}
}

// NewHTTPStatusError creates a ConnectivityError for a non-2xx response.
func NewHTTPStatusError(url string, statusCode int) *ConnectivityError {
	return &ConnectivityError{URL: url, StatusCode: statusCode}
}

// DecodeKind classifies why a payload failed to decode.
type DecodeKind int

const (
	// DecodeFailed means the payload itself could not be parsed.
	DecodeFailed DecodeKind = iota
	// DecodeLoginRedirect means the request was redirected to a login page.
	DecodeLoginRedirect
	// DecodeWrongContent means the request was redirected to unrelated content.
	DecodeWrongContent
)

// DecodeError represents a payload that could not be decoded. Kind records
// the redirect classification made by the fetcher.
type DecodeError struct {
	URL      string
	FinalURL string
	Format   string // "JSON", "XML", "text", "binary"
	Kind     DecodeKind
	Err      error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeLoginRedirect:
		return fmt.Sprintf("redirected to login page from %s", e.URL)
	case DecodeWrongContent:
		return fmt.Sprintf("redirected to non-%s page from %s", e.Format, e.URL)
	default:
		return fmt.Sprintf("failed to decode %s from %s: %v", e.Format, e.URL, e.Err)
	}
}

// Unwrap implements errors.Unwrap.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case DecodeLoginRedirect:
		return target == ErrPermission
	case DecodeWrongContent:
		return target == ErrConnectivity
	default:
		return target == ErrDecode
	}
}

// BadShapeError represents a payload that decoded successfully but does not
// have the structure the client expects. Callers typically treat this as
// "no data available" rather than aborting.
type BadShapeError struct {
	Resource string
	ID       string
	Message  string
}

// Error implements the error interface.
func (e *BadShapeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("unexpected %s data for %s: %s", e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("unexpected %s data: %s", e.Resource, e.Message)
}

// Is implements errors.Is support.
func (e *BadShapeError) Is(target error) bool { return target == ErrBadShape }

// NewBadShapeError creates a new BadShapeError.
func NewBadShapeError(resource, id, message string) *BadShapeError {
	return &BadShapeError{Resource: resource, ID: id, Message: message}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Setting string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Setting != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Setting, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ConfigError) Unwrap() error { return e.Err }

// DatabaseError represents an error from the collection database.
type DatabaseError struct {
	Operation string // "select", "update", "commit"
	Table     string
	Err       error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("database %s on %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("database %s failed: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *DatabaseError) Unwrap() error { return e.Err }

// Helper functions for error checking.

// IsConnectivity checks if an error is a transport or HTTP status failure.
func IsConnectivity(err error) bool { return errors.Is(err, ErrConnectivity) }

// IsPermission checks if an error is an authentication/permission failure.
func IsPermission(err error) bool { return errors.Is(err, ErrPermission) }

// IsBadShape checks if an error indicates a structurally-unexpected payload.
func IsBadShape(err error) bool { return errors.Is(err, ErrBadShape) }

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
