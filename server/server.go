package server

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/oakforge/authd/instrumentation"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/storage"
)

// Server implements the OAuth 2.0 authorization server logic.
// It coordinates the authorization code grant across the storage backends
// and is transport-agnostic: the root package adapts it to HTTP.
type Server struct {
	clientStore storage.ClientStore
	userStore   storage.UserStore
	codeStore   storage.CodeStore
	tokenStore  storage.TokenStore

	Auditor                  *security.Auditor
	RateLimiter              *security.RateLimiter // IP-based rate limiter
	SecurityEventRateLimiter *security.RateLimiter // Rate limiter for security event logging (DoS prevention)
	Instrumentation          *instrumentation.Instrumentation
	Logger                   *slog.Logger
	Config                   *Config
}

// New creates a new authorization server
func New(
	clientStore storage.ClientStore,
	userStore storage.UserStore,
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("token signing key is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		clientStore: clientStore,
		userStore:   userStore,
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		Config:      config,
		Logger:      logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetSecurityEventRateLimiter sets the rate limiter for security event logging
// This prevents DoS attacks via log flooding from repeated security events
func (s *Server) SetSecurityEventRateLimiter(rl *security.RateLimiter) {
	s.SecurityEventRateLimiter = rl
}

// SetInstrumentation sets the OpenTelemetry instrumentation
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
}

// metrics returns the metrics recorder, or nil when instrumentation is disabled.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, tokens, and state values.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
