// Package storage defines interfaces for persisting OAuth clients, users,
// authorization codes, and tokens. It supports various backend implementations
// including in-memory and Redis.
package storage

import (
	"context"
	"time"
)

// ClientStore defines the interface for managing registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret validates a client's secret.
	// Implementations MUST take the same amount of time whether the client
	// exists or not, to prevent client enumeration via timing.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// UserStore defines the interface for managing resource owner accounts.
// All methods accept context.Context for tracing and cancellation.
type UserStore interface {
	// SaveUser saves a user account
	SaveUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail retrieves a user by email address
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ValidateUserCredentials checks an email/password pair and returns the
	// matching user. Implementations MUST take the same amount of time
	// whether the email exists or not, to prevent account enumeration via
	// timing. Returns ErrInvalidCredentials on any mismatch.
	ValidateUserCredentials(ctx context.Context, email, password string) (*User, error)
}

// CodeStore defines the interface for managing issued authorization codes.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode saves an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves an authorization code without consuming it
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically validates and invalidates an
	// authorization code. The code's stored client ID and redirect URI
	// are checked against the presented values inside the same atomic
	// step as the consumption: on a mismatch the code is left untouched
	// and ErrCodeBindingMismatch is returned with the stored record, so
	// a mis-bound attempt cannot burn the code for its rightful holder.
	// When two valid redemptions race, exactly one caller receives the
	// code; every other caller gets ErrCodeUsed. Codes that were never
	// issued yield ErrCodeNotFound; expired codes yield ErrCodeExpired.
	// SECURITY: validation and consumption MUST be one atomic step to
	// prevent concurrent code exchange attacks.
	ConsumeAuthorizationCode(ctx context.Context, code, clientID, redirectURI string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes an authorization code
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore defines the interface for tracking issued tokens.
// Access tokens are self-contained JWTs; the record kept here exists for
// auditing and future revocation, keyed by the token's JWT ID.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken records an issued access token by its token ID (jti)
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token record by token ID
	GetAccessToken(ctx context.Context, tokenID string) (*AccessToken, error)

	// SaveRefreshToken saves a refresh token grant with expiry
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshTokenInfo retrieves the grant behind a refresh token
	GetRefreshTokenInfo(ctx context.Context, refreshToken string) (*RefreshToken, error)

	// DeleteRefreshToken removes a refresh token
	DeleteRefreshToken(ctx context.Context, refreshToken string) error
}

// Client represents a registered OAuth client
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash
	ClientName       string
	RedirectURIs     []string
	Scopes           []string
	CreatedAt        time.Time
}

// User represents a resource owner account
type User struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt hash
	Name         string
	CreatedAt    time.Time
}

// AuthorizationCode represents an issued authorization code.
// The code is bound to the client, user, redirect URI, and scope that were
// fixed at authorization time; token exchange must present the same binding.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// AccessToken is the persisted record of an issued access token.
// TokenID matches the jti claim of the JWT handed to the client.
type AccessToken struct {
	TokenID   string
	UserID    string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RefreshToken is the persisted record of an issued refresh token grant.
type RefreshToken struct {
	Token     string
	UserID    string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
