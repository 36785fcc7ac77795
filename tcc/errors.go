package tcc

import "fmt"

// ValidationError indicates bad input caught before any network activity,
// such as a malformed login email.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError indicates the portal rejected the login exchange, rate-limited
// the account, or the re-login budget inside request() was exhausted.
// StatusCode carries the HTTP status of the last response seen, when known.
type AuthError struct {
	Reason     string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed: %s (status %d)", e.Reason, e.StatusCode)
	}
	return "authentication failed: " + e.Reason
}

// ParseError indicates the portal markup or JSON violated a scrape invariant.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// NotFoundError indicates a reference to something the session does not
// know about, such as an unknown zone field name.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}
