package authority

import (
	"encoding/json"
	"errors"
	"fmt"
)

// expiredTicketMessage is the exact message the authority uses when a request
// was signed with a ticket it considers expired.
const expiredTicketMessage = "Expired ticket"

// TransportError wraps a connection, DNS or timeout failure. The request
// never produced an authority response.
type TransportError struct {
	// URL is the requested URL.
	URL string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the authority returned a non-empty body that could
// not be parsed as JSON. It is fatal for the call; the body is never coerced.
type ProtocolError struct {
	// URL is the requested URL.
	URL string

	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed authority response from %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AuthorityError is a structured failure reported by the authority itself.
// The authority encodes its own error envelope in the response body, so this
// can be produced even when the transport-level HTTP status is 200.
type AuthorityError struct {
	// StatusCode is the authority's status code from the envelope (>= 300).
	StatusCode int `json:"statusCode"`

	// Kind is the authority's short error string, e.g. "Unauthorized".
	Kind string `json:"error"`

	// Message is the authority's human-readable message.
	Message string `json:"message"`

	// Validation carries the optional validation-detail payload, verbatim.
	Validation json.RawMessage `json:"validation,omitempty"`
}

// Error implements the error interface.
func (e *AuthorityError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authority error %d: %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("authority error %d: %s", e.StatusCode, e.Kind)
}

// ExpiredTicket reports whether this error is the authority's expired-ticket
// rejection, which triggers re-acquisition of the app ticket.
func (e *AuthorityError) ExpiredTicket() bool {
	return e.StatusCode == 401 && e.Message == expiredTicketMessage
}

// IsAuthorityError checks if an error is an AuthorityError with the specified
// status code. If statusCode is 0, it matches any AuthorityError.
func IsAuthorityError(err error, statusCode int) bool {
	var authErr *AuthorityError
	if !errors.As(err, &authErr) {
		return false
	}
	if statusCode == 0 {
		return true
	}
	return authErr.StatusCode == statusCode
}
