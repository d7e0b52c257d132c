// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oakforge/authd/instrumentation"
	"github.com/oakforge/authd/internal/util"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging
	// code and token identifiers. Enough uniqueness for debugging while
	// keeping logs secure.
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore, UserStore, CodeStore, and TokenStore.
type Store struct {
	mu sync.RWMutex

	// Client and user storage
	clients      map[string]*storage.Client
	users        map[string]*storage.User
	usersByEmail map[string]string // email -> user ID

	// Flow storage
	authCodes map[string]*consumableCode

	// Token storage
	accessTokens  map[string]*storage.AccessToken  // token ID (jti) -> record
	refreshTokens map[string]*storage.RefreshToken // token value -> record

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic       atomic.Int64
	usersCountAtomic         atomic.Int64
	codesCountAtomic         atomic.Int64
	tokensCountAtomic        atomic.Int64
	refreshTokensCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// consumableCode wraps an authorization code with its consumption flag.
// The flag lives here rather than on the exported type so callers never see
// a half-consumed record.
type consumableCode struct {
	code *storage.AuthorizationCode
	used bool
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		usersByEmail:    make(map[string]string),
		authCodes:       make(map[string]*consumableCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
		s.meter = inst.Meter("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.usersCountAtomic.Store(int64(len(s.users)))
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.tokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using atomic counters (lock-free)
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.usersCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.tokensCountAtomic.Load() },
			func() int64 { return s.refreshTokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("invalid client")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ClientID] = client
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	clientCopy := *client
	return &clientCopy, nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
// Uses constant-time operations to prevent timing attacks.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	// SECURITY: Always perform the same operations whether the client
	// exists or not, so response timing does not reveal registration.
	client, err := s.GetClient(ctx, clientID)

	hashToCompare := security.DummyBcryptHash
	if err == nil && client.ClientSecretHash != "" {
		hashToCompare = client.ClientSecretHash
	}

	// ALWAYS perform the bcrypt comparison, even for unknown clients
	ok := security.VerifySecret(hashToCompare, clientSecret)

	if err != nil {
		return fmt.Errorf("%w: %s", storage.ErrInvalidClientSecret, clientID)
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInvalidClientSecret, clientID)
	}

	return nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clientCopy := *client
		clients = append(clients, &clientCopy)
	}
	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser saves a user account
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	ctx, span := s.startStorageSpan(ctx, "save_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_user", err, startTime)
	}()

	if user == nil || user.ID == "" || user.Email == "" {
		err = fmt.Errorf("invalid user")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	s.usersCountAtomic.Store(int64(len(s.users)))
	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	ctx, span := s.startStorageSpan(ctx, "get_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_user", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrUserNotFound, userID)
		return nil, err
	}

	userCopy := *user
	return &userCopy, nil
}

// GetUserByEmail retrieves a user by email address
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.usersByEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: email", storage.ErrUserNotFound)
	}

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUserNotFound, userID)
	}

	userCopy := *user
	return &userCopy, nil
}

// ValidateUserCredentials checks an email/password pair using bcrypt.
// Uses constant-time operations to prevent account enumeration via timing.
func (s *Store) ValidateUserCredentials(ctx context.Context, email, password string) (*storage.User, error) {
	ctx, span := s.startStorageSpan(ctx, "validate_user_credentials")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "validate_user_credentials", err, startTime)
	}()

	user, lookupErr := s.GetUserByEmail(ctx, email)

	// SECURITY: Always perform a bcrypt comparison, even for unknown emails,
	// so the failure path takes as long as the success path.
	hashToCompare := security.DummyBcryptHash
	if lookupErr == nil && user.PasswordHash != "" {
		hashToCompare = user.PasswordHash
	}

	ok := security.VerifySecret(hashToCompare, password)

	if lookupErr != nil || !ok {
		err = storage.ErrInvalidCredentials
		return nil, err
	}

	return user, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codeCopy := *code
	s.authCodes[code.Code] = &consumableCode{code: &codeCopy}
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it.
//
// NOTE: For actual code exchange, use ConsumeAuthorizationCode instead
// to prevent race conditions.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	if entry.used {
		return nil, storage.ErrCodeUsed
	}

	// Check if expired with clock skew grace period
	if security.IsTokenExpired(entry.code.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", storage.ErrCodeExpired, util.SafeTruncate(code, tokenIDLogLength))
	}

	// Return a COPY to prevent caller from modifying our stored version
	codeCopy := *entry.code
	return &codeCopy, nil
}

// ConsumeAuthorizationCode atomically checks that a code is unused and
// bound to the presented client ID and redirect URI, then marks it
// consumed. Only ONE concurrent request can succeed; every other request
// receives ErrCodeUsed. A binding mismatch returns the stored record with
// ErrCodeBindingMismatch and leaves the code redeemable. The consumed
// record stays in the map until swept so replay attempts remain
// distinguishable from unknown codes.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code, clientID, redirectURI string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-set
	defer s.mu.Unlock()

	entry, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	// Check if expired with clock skew grace period
	if security.IsTokenExpired(entry.code.ExpiresAt) {
		err = fmt.Errorf("%w: %s", storage.ErrCodeExpired, util.SafeTruncate(code, tokenIDLogLength))
		return nil, err
	}

	// ATOMIC check-and-set: only one caller can pass this check
	if entry.used {
		err = storage.ErrCodeUsed
		return nil, err
	}

	// Binding checks run under the same write lock, before the used flag
	// flips: a mismatch changes nothing and the code stays redeemable.
	if entry.code.ClientID != clientID || entry.code.RedirectURI != redirectURI {
		err = storage.ErrCodeBindingMismatch
		codeCopy := *entry.code
		return &codeCopy, err
	}

	entry.used = true
	s.logger.Debug("Consumed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))

	codeCopy := *entry.code
	return &codeCopy, nil
}

// DeleteAuthorizationCode removes an authorization code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.authCodes, code)
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.logger.Debug("Deleted authorization code")
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken records an issued access token by its token ID
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.TokenID == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokenCopy := *token
	s.accessTokens[token.TokenID] = &tokenCopy
	s.tokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.logger.Debug("Saved access token",
		"token_id_prefix", util.SafeTruncate(token.TokenID, tokenIDLogLength))
	return nil
}

// GetAccessToken retrieves an access token record by token ID
func (s *Store) GetAccessToken(ctx context.Context, tokenID string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.accessTokens[tokenID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrTokenNotFound, util.SafeTruncate(tokenID, tokenIDLogLength))
		return nil, err
	}

	if security.IsTokenExpired(token.ExpiresAt) {
		err = fmt.Errorf("%w: %s", storage.ErrTokenExpired, util.SafeTruncate(tokenID, tokenIDLogLength))
		return nil, err
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// SaveRefreshToken saves a refresh token grant with expiry
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_refresh_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid refresh token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokenCopy := *token
	s.refreshTokens[token.Token] = &tokenCopy
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength))
	return nil
}

// GetRefreshTokenInfo retrieves the grant behind a refresh token
func (s *Store) GetRefreshTokenInfo(ctx context.Context, refreshToken string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	if security.IsTokenExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, refreshToken)
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.logger.Debug("Deleted refresh token")
	return nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	// Cleanup expired and consumed authorization codes (with clock skew grace period)
	for code, entry := range s.authCodes {
		if security.IsTokenExpired(entry.code.ExpiresAt) {
			delete(s.authCodes, code)
			cleaned++
		}
	}

	// Cleanup expired access token records
	for tokenID, token := range s.accessTokens {
		if security.IsTokenExpired(token.ExpiresAt) {
			delete(s.accessTokens, tokenID)
			cleaned++
		}
	}

	// Cleanup expired refresh tokens
	for refreshToken, token := range s.refreshTokens {
		if security.IsTokenExpired(token.ExpiresAt) {
			delete(s.refreshTokens, refreshToken)
			cleaned++
		}
	}

	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.tokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
	instrumentation.AddStorageAttributes(span, operation, "memory")

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
