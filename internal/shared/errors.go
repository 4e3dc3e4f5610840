package shared

import "errors"

var (
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrStateMismatch occurs when the OAuth callback state does not match
	// the value stashed at login.
	ErrStateMismatch = errors.New("oauth state mismatch")
)
