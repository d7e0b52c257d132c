package storage

import "errors"

// Sentinel errors returned by storage implementations. Callers match these
// with errors.Is; implementations may wrap them with additional context.
var (
	// ErrClientNotFound indicates the client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret indicates the presented secret did not match
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrUserNotFound indicates no user exists for the given ID or email
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates an email/password pair did not match.
	// It deliberately does not distinguish "unknown email" from "wrong
	// password" to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCodeNotFound indicates the authorization code does not exist or
	// has already been consumed
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the authorization code exists but its
	// expiry has passed
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrCodeUsed indicates the authorization code has already been
	// consumed. A second redemption attempt is a replay.
	ErrCodeUsed = errors.New("authorization code already used")

	// ErrCodeBindingMismatch indicates the authorization code exists and
	// is unused, but the presented client ID or redirect URI does not
	// match the binding fixed at issuance. The code is NOT consumed: a
	// mis-bound attempt must not burn it for the legitimate client.
	ErrCodeBindingMismatch = errors.New("authorization code binding mismatch")

	// ErrTokenNotFound indicates no token record exists for the given key
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates a token record exists but has expired
	ErrTokenExpired = errors.New("token expired")
)
