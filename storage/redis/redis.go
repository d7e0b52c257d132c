// Package redis provides a Redis-backed implementation of all storage
// interfaces. It is suitable for multi-instance deployments where flow
// state must survive restarts and be shared across servers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oakforge/authd/internal/util"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "authd:"

	// tokenIDLogLength is the number of characters to include when logging
	// code and token identifiers
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Address is the Redis server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Redis authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authd:")
	KeyPrefix string

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of all storage interfaces.
// It implements ClientStore, UserStore, CodeStore, and TokenStore.
//
// Expiry is enforced twice: records carry their own expires_at timestamp
// (checked on read, and inside the Lua consume script), and every volatile
// key is written with a Redis TTL so expired records are evicted without
// a cleanup goroutine.
type Store struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates a new Redis-backed storage instance and verifies the
// connection. Returns an error if the server cannot be reached.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	logger.Info("Connected to Redis storage backend",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// ============================================================
// Key Builders
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) clientIndexKey() string {
	return s.prefix + "clients"
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *Store) userEmailKey(email string) string {
	return s.prefix + "user_email:" + email
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

func (s *Store) tokenKey(tokenID string) string {
	return s.prefix + "token:" + tokenID
}

func (s *Store) refreshKey(token string) string {
	return s.prefix + "refresh:" + token
}

// ============================================================
// JSON Serialization
// ============================================================
//
// Records are stored as JSON with Unix-second timestamps so the Lua
// consume script can read expires_at without parsing RFC 3339 dates.

type clientJSON struct {
	ClientID         string   `json:"client_id"`
	ClientSecretHash string   `json:"client_secret_hash"`
	ClientName       string   `json:"client_name"`
	RedirectURIs     []string `json:"redirect_uris"`
	Scopes           []string `json:"scopes"`
	CreatedAt        int64    `json:"created_at"`
}

type userJSON struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Name         string `json:"name"`
	CreatedAt    int64  `json:"created_at"`
}

type authorizationCodeJSON struct {
	Code        string `json:"code"`
	ClientID    string `json:"client_id"`
	UserID      string `json:"user_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
	Used        bool   `json:"used"`
}

type accessTokenJSON struct {
	TokenID   string `json:"token_id"`
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

type refreshTokenJSON struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:         c.ClientID,
		ClientSecretHash: c.ClientSecretHash,
		ClientName:       c.ClientName,
		RedirectURIs:     c.RedirectURIs,
		Scopes:           c.Scopes,
		CreatedAt:        c.CreatedAt.Unix(),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ClientID:         j.ClientID,
		ClientSecretHash: j.ClientSecretHash,
		ClientName:       j.ClientName,
		RedirectURIs:     j.RedirectURIs,
		Scopes:           j.Scopes,
		CreatedAt:        time.Unix(j.CreatedAt, 0),
	}
}

func toUserJSON(u *storage.User) *userJSON {
	return &userJSON{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		CreatedAt:    u.CreatedAt.Unix(),
	}
}

func fromUserJSON(j *userJSON) *storage.User {
	return &storage.User{
		ID:           j.ID,
		Email:        j.Email,
		PasswordHash: j.PasswordHash,
		Name:         j.Name,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
	}
}

func toAuthorizationCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:        c.Code,
		ClientID:    c.ClientID,
		UserID:      c.UserID,
		RedirectURI: c.RedirectURI,
		Scope:       c.Scope,
		CreatedAt:   c.CreatedAt.Unix(),
		ExpiresAt:   c.ExpiresAt.Unix(),
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        j.Code,
		ClientID:    j.ClientID,
		UserID:      j.UserID,
		RedirectURI: j.RedirectURI,
		Scope:       j.Scope,
		CreatedAt:   time.Unix(j.CreatedAt, 0),
		ExpiresAt:   time.Unix(j.ExpiresAt, 0),
	}
}

func toAccessTokenJSON(t *storage.AccessToken) *accessTokenJSON {
	return &accessTokenJSON{
		TokenID:   t.TokenID,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		Scope:     t.Scope,
		CreatedAt: t.CreatedAt.Unix(),
		ExpiresAt: t.ExpiresAt.Unix(),
	}
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	return &storage.AccessToken{
		TokenID:   j.TokenID,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
	}
}

func toRefreshTokenJSON(t *storage.RefreshToken) *refreshTokenJSON {
	return &refreshTokenJSON{
		Token:     t.Token,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		Scope:     t.Scope,
		CreatedAt: t.CreatedAt.Unix(),
		ExpiresAt: t.ExpiresAt.Unix(),
	}
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:     j.Token,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
	}
}

// ============================================================
// Helpers
// ============================================================

// calculateTTL computes the Redis TTL for a record from its expiry time.
// Returns an error if the record has already expired; Redis rejects
// non-positive expirations.
func calculateTTL(expiresAt time.Time) (time.Duration, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0, fmt.Errorf("record already expired at %s", expiresAt.Format(time.RFC3339))
	}
	return ttl, nil
}

// isNilError reports whether err indicates a missing key.
func isNilError(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient stores a registered OAuth client. Clients have no TTL; they
// persist until explicitly removed.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client and client ID are required")
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.clientKey(client.ClientID), data, 0)
	pipe.SAdd(ctx, s.clientIndexKey(), client.ClientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a registered client by its identifier.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var j clientJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return fromClientJSON(&j), nil
}

// ValidateClientSecret checks a client secret against the stored bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	// SECURITY: Always perform the same operations whether the client
	// exists or not, so response timing does not reveal registration.
	client, err := s.GetClient(ctx, clientID)

	hashToCompare := security.DummyBcryptHash
	if err == nil && client.ClientSecretHash != "" {
		hashToCompare = client.ClientSecretHash
	}

	ok := security.VerifySecret(hashToCompare, clientSecret)

	if err != nil {
		return fmt.Errorf("%w: %s", storage.ErrInvalidClientSecret, clientID)
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInvalidClientSecret, clientID)
	}

	return nil
}

// ListClients lists all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ids, err := s.client.SMembers(ctx, s.clientIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if err != nil {
			// Index entries can outlive their records; skip stale ones.
			if errors.Is(err, storage.ErrClientNotFound) {
				continue
			}
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser stores a resource-owner account along with an email index entry
// for credential lookups.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user and user ID are required")
	}
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}

	data, err := json.Marshal(toUserJSON(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.userKey(user.ID), data, 0)
	pipe.Set(ctx, s.userEmailKey(user.Email), user.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	data, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var j userJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return fromUserJSON(&j), nil
}

// GetUserByEmail retrieves a user via the email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	userID, err := s.client.Get(ctx, s.userEmailKey(email)).Result()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%w: email", storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to resolve user email: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// ValidateUserCredentials checks an email/password pair and returns the
// matching user on success.
func (s *Store) ValidateUserCredentials(ctx context.Context, email, password string) (*storage.User, error) {
	user, lookupErr := s.GetUserByEmail(ctx, email)

	// SECURITY: Always perform a bcrypt comparison, even for unknown emails,
	// so the failure path takes as long as the success path.
	hashToCompare := security.DummyBcryptHash
	if lookupErr == nil && user.PasswordHash != "" {
		hashToCompare = user.PasswordHash
	}

	ok := security.VerifySecret(hashToCompare, password)

	if lookupErr != nil || !ok {
		return nil, storage.ErrInvalidCredentials
	}

	return user, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// luaConsumeAuthorizationCode atomically checks that an authorization code
// is unexpired, unused, and bound to the presenting client, then marks it
// used in place.
//
// SECURITY: The checks and the mark MUST be one atomic step; only ONE
// concurrent redemption may succeed, and a mis-bound attempt must leave
// the code untouched for the legitimate client. Concurrent attempts
// observe the used flag and receive ALREADY_USED.
//
// KEYS[1] = code key
// ARGV[1] = current Unix timestamp in seconds
// ARGV[2] = presented client_id
// ARGV[3] = presented redirect_uri
//
// Returns:
//   - the original JSON if the code was unused and is now marked used
//   - "NOT_FOUND" if the key does not exist
//   - "EXPIRED" if now > code.expires_at
//   - "ALREADY_USED:<json>" if the code was already redeemed (original
//     data returned for reuse auditing)
//   - "BINDING_MISMATCH:<json>" if client_id or redirect_uri differs from
//     the stored binding; the used flag is NOT set
const luaConsumeAuthorizationCode = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local code = cjson.decode(data)

local now = tonumber(ARGV[1])
local expiresAt = tonumber(code.expires_at)
if expiresAt and now > expiresAt then
    return 'EXPIRED'
end

if code.used then
    return 'ALREADY_USED:' .. data
end

if code.client_id ~= ARGV[2] or code.redirect_uri ~= ARGV[3] then
    return 'BINDING_MISMATCH:' .. data
end

code.used = true
redis.call('SET', KEYS[1], cjson.encode(code), 'KEEPTTL')

return data
`

// SaveAuthorizationCode stores an authorization code with a TTL derived
// from its expiry.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code is required")
	}

	ttl, err := calculateTTL(code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("invalid authorization code expiry: %w", err)
	}

	data, err := json.Marshal(toAuthorizationCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if err := s.client.Set(ctx, s.codeKey(code.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.codeKey(code)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	if j.Used {
		return nil, storage.ErrCodeUsed
	}

	authCode := fromAuthorizationCodeJSON(&j)
	if security.IsTokenExpired(authCode.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", storage.ErrCodeExpired, util.SafeTruncate(code, tokenIDLogLength))
	}
	return authCode, nil
}

// ConsumeAuthorizationCode atomically redeems an authorization code bound
// to the presented client ID and redirect URI. Exactly one caller receives
// the code; every other caller gets ErrCodeUsed. A binding mismatch leaves
// the code unconsumed. On ErrCodeUsed or ErrCodeBindingMismatch the
// original record is returned alongside the error so callers can audit
// the attempt.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code, clientID, redirectURI string) (*storage.AuthorizationCode, error) {
	result, err := s.client.Eval(ctx, luaConsumeAuthorizationCode,
		[]string{s.codeKey(code)},
		time.Now().Unix(), clientID, redirectURI,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic code consume: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrCodeNotFound
	case result == "EXPIRED":
		return nil, fmt.Errorf("%w: %s", storage.ErrCodeExpired, util.SafeTruncate(code, tokenIDLogLength))
	case strings.HasPrefix(result, "ALREADY_USED:"):
		codeData := strings.TrimPrefix(result, "ALREADY_USED:")
		var j authorizationCodeJSON
		if err := json.Unmarshal([]byte(codeData), &j); err != nil {
			return nil, fmt.Errorf("%w: failed to parse replayed code", storage.ErrCodeUsed)
		}
		return fromAuthorizationCodeJSON(&j), storage.ErrCodeUsed
	case strings.HasPrefix(result, "BINDING_MISMATCH:"):
		codeData := strings.TrimPrefix(result, "BINDING_MISMATCH:")
		var j authorizationCodeJSON
		if err := json.Unmarshal([]byte(codeData), &j); err != nil {
			return nil, fmt.Errorf("%w: failed to parse mis-bound code", storage.ErrCodeBindingMismatch)
		}
		return fromAuthorizationCodeJSON(&j), storage.ErrCodeBindingMismatch
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	s.logger.Debug("Consumed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return fromAuthorizationCodeJSON(&j), nil
}

// DeleteAuthorizationCode removes an authorization code.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.codeKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	s.logger.Debug("Deleted authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken stores access token metadata keyed by token ID (jti)
// with a TTL derived from its expiry.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.TokenID == "" {
		return fmt.Errorf("access token and token ID are required")
	}

	ttl, err := calculateTTL(token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("invalid access token expiry: %w", err)
	}

	data, err := json.Marshal(toAccessTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	if err := s.client.Set(ctx, s.tokenKey(token.TokenID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	s.logger.Debug("Saved access token",
		"token_id_prefix", util.SafeTruncate(token.TokenID, tokenIDLogLength),
		"user_id", token.UserID)
	return nil
}

// GetAccessToken retrieves access token metadata by token ID.
func (s *Store) GetAccessToken(ctx context.Context, tokenID string) (*storage.AccessToken, error) {
	data, err := s.client.Get(ctx, s.tokenKey(tokenID)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrTokenNotFound, util.SafeTruncate(tokenID, tokenIDLogLength))
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var j accessTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}

	token := fromAccessTokenJSON(&j)
	if security.IsTokenExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", storage.ErrTokenExpired, util.SafeTruncate(tokenID, tokenIDLogLength))
	}
	return token, nil
}

// SaveRefreshToken stores refresh token metadata with a TTL derived from
// its expiry.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("refresh token is required")
	}

	ttl, err := calculateTTL(token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("invalid refresh token expiry: %w", err)
	}

	data, err := json.Marshal(toRefreshTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if err := s.client.Set(ctx, s.refreshKey(token.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"user_id", token.UserID)
	return nil
}

// GetRefreshTokenInfo retrieves refresh token metadata.
func (s *Store) GetRefreshTokenInfo(ctx context.Context, refreshToken string) (*storage.RefreshToken, error) {
	data, err := s.client.Get(ctx, s.refreshKey(refreshToken)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var j refreshTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	token := fromRefreshTokenJSON(&j)
	if security.IsTokenExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
	}
	return token, nil
}

// DeleteRefreshToken removes a refresh token.
func (s *Store) DeleteRefreshToken(ctx context.Context, refreshToken string) error {
	if err := s.client.Del(ctx, s.refreshKey(refreshToken)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	s.logger.Debug("Deleted refresh token",
		"token_prefix", util.SafeTruncate(refreshToken, tokenIDLogLength))
	return nil
}
