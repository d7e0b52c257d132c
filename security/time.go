package security

import "time"

// DefaultClockSkewGracePeriod is how far past its recorded expiry a code or
// token record is still honored by the storage backends. It absorbs NTP
// drift between the hosts writing and reading the records; nothing else
// extends a lifetime.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsTokenExpired reports whether expiresAt is past, allowing the default
// clock skew grace period. A zero time means no expiry.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod reports whether expiresAt is more than
// gracePeriod in the past.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
