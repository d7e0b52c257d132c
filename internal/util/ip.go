package util

import "net"

// IsLoopbackHostname checks if a hostname represents a loopback address.
// This includes "localhost", the entire 127.0.0.0/8 range (RFC 1122), and
// IPv6 ::1. Expects hostname without port (as returned by url.URL.Hostname()).
//
// Redirect URI validation uses this to allow plain http only toward
// loopback targets, per RFC 8252 Section 7.3.
//
// Note: 0.0.0.0 is "unspecified", not loopback, and is rejected here.
func IsLoopbackHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	// Strip brackets from IPv6 literals like [::1].
	cleanHostname := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		cleanHostname = hostname[1 : len(hostname)-1]
	}

	// Parse as IP and use stdlib's IsLoopback for correct handling of:
	// - 127.0.0.0/8 range (all 16M addresses)
	// - ::1 (IPv6 loopback)
	// - ::ffff:127.0.0.1 (IPv4-mapped IPv6 loopback)
	if ip := net.ParseIP(cleanHostname); ip != nil {
		return ip.IsLoopback()
	}

	return false
}
