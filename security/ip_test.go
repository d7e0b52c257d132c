package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		proxyCount int
		want       string
	}{
		{
			name:       "direct connection uses RemoteAddr",
			remoteAddr: "192.168.1.100:12345",
			want:       "192.168.1.100",
		},
		{
			name:       "ipv6 RemoteAddr",
			remoteAddr: "[::1]:12345",
			want:       "::1",
		},
		{
			name:       "portless RemoteAddr passes through",
			remoteAddr: "192.168.1.100",
			want:       "192.168.1.100",
		},
		{
			name:       "forwarding headers ignored without proxy trust",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			xRealIP:    "203.0.113.2",
			want:       "10.0.0.1",
		},
		{
			name:       "X-Forwarded-For honored with proxy trust",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1, 10.0.0.2",
			trustProxy: true,
			want:       "203.0.113.1",
		},
		{
			name:       "X-Forwarded-For wins over X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			xRealIP:    "203.0.113.2",
			trustProxy: true,
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP as fallback",
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "203.0.113.2",
			trustProxy: true,
			want:       "203.0.113.2",
		},
		{
			name:       "two-proxy chain picks the hop before the chain",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1, 10.0.0.2, 10.0.0.3",
			trustProxy: true,
			proxyCount: 2,
			want:       "203.0.113.1",
		},
		{
			name:       "chain longer than header clamps to the first hop",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			trustProxy: true,
			proxyCount: 5,
			want:       "203.0.113.1",
		},
		{
			name:       "whitespace around hops is trimmed",
			remoteAddr: "10.0.0.1:12345",
			xff:        " 203.0.113.1 , 10.0.0.2 ",
			trustProxy: true,
			want:       "203.0.113.1",
		},
		{
			name:       "garbage X-Forwarded-For falls back to RemoteAddr",
			remoteAddr: "10.0.0.1:12345",
			xff:        "not-an-ip",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(req, tt.trustProxy, tt.proxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
