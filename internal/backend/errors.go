package backend

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a transient backend failure on read or write. Callers
// surface it once; nothing in this client retries automatically.
var ErrUnavailable = errors.New("backend unavailable")

// Auth failure codes, matching the provider's classification.
const (
	CodeInvalidCredentials = "invalid-credentials"
	CodeEmailTaken         = "email-already-in-use"
	CodeWeakPassword       = "weak-password"
	CodeInvalidEmail       = "invalid-email"
	CodeUserDisabled       = "user-disabled"
	CodeRateLimited        = "too-many-requests"
)

// AuthError is a classified authentication failure.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return "auth: " + e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// AuthCode extracts the failure code from err, or "" when err is not an
// AuthError.
func AuthCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
