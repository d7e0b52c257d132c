package server

import (
	"log/slog"
)

// Default scope values granted when a client omits the scope parameter.
const DefaultScope = "profile"

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// SigningKey is the HMAC key used to sign access tokens (required).
	// Must be at least 32 bytes of cryptographically random data.
	SigningKey []byte

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Default: 1
	TrustedProxyCount int

	// SupportedScopes lists the scopes clients may request.
	// Default: ["profile", "email"]
	SupportedScopes []string

	// ClockSkewGracePeriod is the leeway, in seconds, applied when
	// verifying JWT time claims. It covers only JWT verification: the
	// storage backends apply their own fixed skew allowance,
	// security.DefaultClockSkewGracePeriod, when checking record expiry.
	// Default: 5 seconds
	ClockSkewGracePeriod int64
}

// minSigningKeyLength is the minimum acceptable HMAC key length in bytes.
// HS256 keys shorter than the hash output weaken the MAC.
const minSigningKeyLength = 32

// applySecureDefaults applies secure-by-default configuration values
// This follows the principle: secure by default, opt-in for less secure options
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)

	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{"profile", "email"}
	}

	if len(config.SigningKey) > 0 && len(config.SigningKey) < minSigningKeyLength {
		logger.Warn("Token signing key is shorter than recommended",
			"length", len(config.SigningKey),
			"recommended_minimum", minSigningKeyLength)
	}

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 2592000 // 30 days
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5
	}
}
