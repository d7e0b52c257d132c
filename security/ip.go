package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP resolves the caller's IP for rate limiting and audit logs.
// Forwarding headers are honored only when trustProxy is set: the server
// sits behind a reverse proxy it controls, and trustedProxyCount says how
// many trailing X-Forwarded-For hops are that proxy chain. With trustProxy
// off the headers are attacker-controlled and only RemoteAddr counts.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor picks the client hop out of an X-Forwarded-For list.
// The list reads "client, hop1, hop2, ..." and each trusted proxy appends
// the address it saw, so the client is the entry trustedProxyCount hops in
// from the right. Entries left of that are whatever the client sent and
// cannot be believed.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	hops := strings.Split(xff, ",")
	return parseIP(strings.TrimSpace(hops[clientHopIndex(len(hops), trustedProxyCount)]))
}

// clientHopIndex locates the client entry: len - proxies - 1, clamped to 0
// when the header is shorter than the configured chain. A zero proxy count
// is treated as one: trustProxy implies at least the proxy that set the
// header.
func clientHopIndex(numHops, trustedProxyCount int) int {
	proxies := trustedProxyCount
	if proxies == 0 {
		proxies = 1
	}

	idx := numHops - proxies - 1
	if idx < 0 {
		return 0
	}
	return idx
}

// parseIP returns s if it is a literal IP address, "" otherwise.
func parseIP(s string) string {
	if s != "" && net.ParseIP(s) != nil {
		return s
	}
	return ""
}

// ipFromRemoteAddr strips the port from a host:port RemoteAddr.
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
