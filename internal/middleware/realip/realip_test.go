package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_ClientIP(t *testing.T) {
	trusted := Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8", "192.168.1.5", "fd00::/8", "bogus"}}

	tests := []struct {
		name   string
		cfg    Config
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"proxy not trusted", Config{}, "10.0.0.1:1234", "203.0.113.9", "", "10.0.0.1"},
		{"untrusted peer", trusted, "198.51.100.7:1234", "203.0.113.9", "", "198.51.100.7"},
		{"trusted peer single hop", trusted, "10.0.0.1:1234", "203.0.113.9", "", "203.0.113.9"},
		{"multiple hops", trusted, "10.0.0.1:1234", "203.0.113.9, 198.51.100.2, 10.1.1.1", "", "198.51.100.2"},
		{"all hops trusted", trusted, "10.0.0.1:1234", "10.2.2.2, 10.3.3.3", "", "10.2.2.2"},
		{"single address entry", trusted, "192.168.1.5:80", "203.0.113.9", "", "203.0.113.9"},
		{"real ip fallback", trusted, "10.0.0.1:1234", "", "203.0.113.10", "203.0.113.10"},
		{"no headers", trusted, "10.0.0.1:1234", "", "", "10.0.0.1"},
		{"ipv6 proxy", trusted, "[fd00::1]:443", "2001:db8::5", "", "2001:db8::5"},
		{"remote without port", Config{}, "203.0.113.1", "", "", "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, NewResolver(tt.cfg).ClientIP(req))
		})
	}
}

func TestMiddleware_StoresClientIP(t *testing.T) {
	var got string
	handler := Middleware(Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetClientIP(r)
		}),
	)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.50", got)
}

func TestGetClientIP_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	assert.Equal(t, "198.51.100.1", GetClientIP(req))
}
