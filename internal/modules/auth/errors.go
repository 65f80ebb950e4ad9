package auth

import "errors"

// Business failures the handler translates to HTTP statuses. Unknown email,
// wrong password and inactive account all collapse into ErrInvalidCredentials
// so responses never reveal whether an email is registered.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
)
