package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders applies the response headers every OAuth endpoint
// carries. The endpoints serve either JSON or the self-contained consent
// page, so the content security policy forbids all external resources and
// framing, and responses are never cacheable: authorization codes and
// tokens must not land in shared caches. HSTS is set only when the issuer
// itself is HTTPS.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-XSS-Protection", "1; mode=block")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
