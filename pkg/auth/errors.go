package auth

import "errors"

var (
	// ErrUnauthenticated is the single expected authentication failure:
	// no token, invalid token, or a user/membership that no longer exists.
	ErrUnauthenticated = errors.New("auth: not authenticated")

	// ErrInvalidRole is returned when a string is not a known role
	ErrInvalidRole = errors.New("auth: invalid role")

	// ErrEmptySecret is returned when a codec is built without a signing secret
	ErrEmptySecret = errors.New("auth: signing secret is empty")

	// ErrInvalidSubject is returned when Sign is given incomplete claims
	ErrInvalidSubject = errors.New("auth: token subject is incomplete")

	// ErrPasswordMismatch is returned when a password does not match its hash
	ErrPasswordMismatch = errors.New("auth: password mismatch")
)
