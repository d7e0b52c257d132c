package authd

import (
	"log/slog"

	"github.com/oakforge/authd/instrumentation"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/server"
	"github.com/oakforge/authd/storage"
)

// Config holds the top-level configuration for a wired authorization server.
type Config struct {
	// Issuer is the server's issuer identifier (base URL, required)
	Issuer string

	// SigningKey is the HMAC key used to sign access tokens (required)
	SigningKey []byte

	// AuthorizationCodeTTL is how long authorization codes are valid
	// Default: 600 seconds (10 minutes)
	AuthorizationCodeTTL int64

	// AccessTokenTTL is how long access tokens are valid
	// Default: 3600 seconds (1 hour)
	AccessTokenTTL int64

	// RefreshTokenTTL is how long refresh tokens are valid
	// Default: 2592000 seconds (30 days)
	RefreshTokenTTL int64

	// SupportedScopes lists the scopes clients may request
	// Default: ["profile", "email"]
	SupportedScopes []string

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable behind a trusted reverse proxy
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	TrustedProxyCount int

	// RateLimit configures per-IP rate limiting on the authentication
	// endpoints. A zero Rate disables limiting.
	RateLimit RateLimitConfig

	// DisableAudit turns off security audit logging. Audit events are
	// emitted by default.
	DisableAudit bool

	// Logger for structured logging (optional, uses slog.Default if not provided)
	Logger *slog.Logger

	// Instrumentation enables OpenTelemetry tracing and metrics (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int
}

// New wires a fully configured Handler: flow server, auditor, rate
// limiters, and instrumentation. The four store arguments may all be the
// same value when one backend implements every interface.
func New(
	cfg Config,
	clientStore storage.ClientStore,
	userStore storage.UserStore,
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
) (*Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := server.New(clientStore, userStore, codeStore, tokenStore, &server.Config{
		Issuer:               cfg.Issuer,
		SigningKey:           cfg.SigningKey,
		AuthorizationCodeTTL: cfg.AuthorizationCodeTTL,
		AccessTokenTTL:       cfg.AccessTokenTTL,
		RefreshTokenTTL:      cfg.RefreshTokenTTL,
		SupportedScopes:      cfg.SupportedScopes,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxyCount,
	}, logger)
	if err != nil {
		return nil, err
	}

	srv.SetAuditor(security.NewAuditor(logger, !cfg.DisableAudit))

	if cfg.RateLimit.Rate > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = cfg.RateLimit.Rate
		}
		srv.SetRateLimiter(security.NewRateLimiter(cfg.RateLimit.Rate, burst, logger))
	}

	// Replay alerts are log-flood bait, so their logging is always limited.
	srv.SetSecurityEventRateLimiter(security.NewRateLimiter(1, 5, logger))

	if cfg.Instrumentation != nil {
		srv.SetInstrumentation(cfg.Instrumentation)
	}

	return NewHandler(srv, logger), nil
}

// Close stops the background goroutines owned by the handler's rate
// limiters. Safe to call once during shutdown.
func (h *Handler) Close() {
	if h.server.RateLimiter != nil {
		h.server.RateLimiter.Stop()
	}
	if h.server.SecurityEventRateLimiter != nil {
		h.server.SecurityEventRateLimiter.Stop()
	}
}
