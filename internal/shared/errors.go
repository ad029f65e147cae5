package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked indicates the account has been blocked by an administrator.
	// Login must fail with this error before any session is established.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrEmailTaken indicates a sign-up attempt with an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps internal errors to a message safe to show end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email or password is incorrect."
	case errors.Is(err, ErrAccountBlocked):
		return "This account has been blocked. Contact an administrator."
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists."
	default:
		return "Something went wrong. Please try again."
	}
}
