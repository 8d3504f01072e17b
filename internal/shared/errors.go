package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SafeError is implemented by errors whose message may be shown to end users.
type SafeError interface {
	error
	SafeMessage() string
}

// UserSafeMessage converts err into text that does not leak internals.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe SafeError
	if errors.As(err, &safe) {
		return safe.SafeMessage()
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	case errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return "Your form has expired. Please reload the page and try again."
	}
	return "Something went wrong. Please try again."
}
