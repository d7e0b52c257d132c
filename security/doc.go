// Package security provides security-related functionality for the OAuth server,
// including rate limiting, password verification, IP validation, and audit logging.
//
// # Rate Limiting
//
// The RateLimiter provides per-identifier rate limiting using a token bucket algorithm
// with automatic memory management through LRU (Least Recently Used) eviction.
//
// To prevent unbounded memory growth under distributed attacks, the rate limiter
// implements a configurable maximum entries limit. When this limit is reached,
// the least recently used entries are automatically evicted.
//
// Default configuration:
//   - MaxEntries: 10,000 unique identifiers
//   - CleanupInterval: 5 minutes
//   - IdleTimeout: 30 minutes
//
// Example:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // Rate limit exceeded
//	    return http.StatusTooManyRequests
//	}
//
// # Password and Secret Verification
//
// HashSecret and VerifySecret wrap bcrypt for user passwords and client
// secrets. When the principal being authenticated does not exist, callers
// compare against DummyBcryptHash so the failure path takes as long as the
// success path and identifiers cannot be enumerated via timing.
//
// # Audit Logging
//
// The Auditor emits structured security events with hashed PII. User IDs are
// SHA-256 hashed before logging; raw credentials are never logged.
package security
