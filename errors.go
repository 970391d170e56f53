package iptrail

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidInput is returned when client-side validation rejects input
	// before any request is made.
	ErrInvalidInput = errors.New("iptrail: invalid input")

	// ErrInvalidCredentials is returned when the server rejects a login.
	ErrInvalidCredentials = errors.New("iptrail: invalid credentials")

	// ErrUnauthorized is returned when the bearer credential is missing or rejected.
	// Callers should treat it as a forced logout.
	ErrUnauthorized = errors.New("iptrail: unauthorized")

	// ErrNetwork is returned when no response was received (transport failure or timeout).
	ErrNetwork = errors.New("iptrail: network error")

	// ErrUpstream is returned when the server answered with an error response.
	ErrUpstream = errors.New("iptrail: upstream error")

	// ErrPartialFailure is returned when a bulk delete could not be confirmed.
	// The history state is unknown and must be re-fetched.
	ErrPartialFailure = errors.New("iptrail: bulk delete outcome unknown")

	// ErrGeoIPDatabaseNotConfigured is returned when an offline lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("iptrail: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when offline IP geolocation fails.
	ErrGeoIPLookupFailed = errors.New("iptrail: GeoIP lookup failed")
)

// UpstreamError is an error response received from the server.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("iptrail: upstream error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("iptrail: upstream error (status %d): %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ValidationError carries field-scoped registration errors.
// Fields maps a form field name to its messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	return "iptrail: validation failed: " + strings.Join(parts, ", ")
}

// First returns the first message for field, or "".
func (e *ValidationError) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// GeneralError is a registration failure that is not scoped to a field.
type GeneralError struct {
	Message string
	Err     error
}

func (e *GeneralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("iptrail: %s: %v", e.Message, e.Err)
	}
	return "iptrail: " + e.Message
}

func (e *GeneralError) Unwrap() error { return e.Err }

// messageError keeps a server-provided message next to a sentinel.
type messageError struct {
	kind    error
	message string
}

func (e *messageError) Error() string {
	if e.message == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.message
}

func (e *messageError) Unwrap() error { return e.kind }

// UserMessage returns a message suitable for showing to the user.
// Server-provided messages win; otherwise fallback is returned.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var msgErr *messageError
	if errors.As(err, &msgErr) && msgErr.message != "" {
		return msgErr.message
	}
	var general *GeneralError
	if errors.As(err, &general) && general.Message != "" {
		return general.Message
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}
	return fallback
}
