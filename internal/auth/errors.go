package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"mdpreview/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("a user with this email already exists")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotConfigured      = errors.New("provider not configured")
	ErrEmptyPassword      = errors.New("password must not be empty")
	ErrPasswordProvider   = errors.New("account uses an external sign-in provider")
)

// Message maps any auth error to text that is safe to show on a form.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return verrs.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password. Please check your credentials."
	case errors.Is(err, ErrAlreadyRegistered), errors.Is(err, store.ErrEmailTaken):
		return "A user with this email already exists."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many attempts. Please try again later."
	case errors.Is(err, ErrInvalidToken):
		return "This link is invalid or has expired."
	case errors.Is(err, ErrNotConfigured):
		return "This sign-in method is not configured."
	case errors.Is(err, ErrPasswordProvider):
		return "This account signs in with Google."
	default:
		return "Something went wrong. Please try again."
	}
}
