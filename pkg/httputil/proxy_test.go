package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8, 192.0.2.1,, 2001:db8::1")
	require.NoError(t, err)
	require.Len(t, trusted, 3)

	assert.True(t, trusted.Contains("10.1.2.3"))
	assert.True(t, trusted.Contains("192.0.2.1"))
	assert.False(t, trusted.Contains("192.0.2.2"))
	assert.True(t, trusted.Contains("2001:db8::1"))
	assert.False(t, trusted.Contains("not-an-ip"))

	empty, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"10.0.0.0/33", "proxy.internal"} {
		_, err := ParseTrustedProxies(bad)
		assert.Error(t, err, bad)
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "untrusted peer ignores forwarded for", remote: "203.0.113.9:1", xff: "198.51.100.1", want: "203.0.113.9"},
		{name: "untrusted peer ignores real ip", remote: "203.0.113.9:1", xri: "198.51.100.1", want: "203.0.113.9"},
		{name: "trusted peer uses forwarded hop", remote: "10.0.0.2:1", xff: "198.51.100.1", want: "198.51.100.1"},
		{name: "right-most untrusted hop wins", remote: "10.0.0.2:1", xff: "1.1.1.1, 198.51.100.1, 10.0.0.5", want: "198.51.100.1"},
		{name: "all hops trusted", remote: "10.0.0.2:1", xff: "10.0.0.7, 10.0.0.5", want: "10.0.0.7"},
		{name: "garbage hop falls back to peer", remote: "10.0.0.2:1", xff: "198.51.100.1, nonsense", want: "10.0.0.2"},
		{name: "trusted peer uses real ip", remote: "10.0.0.2:1", xri: "198.51.100.1", want: "198.51.100.1"},
		{name: "trusted peer without headers", remote: "10.0.0.2:1", want: "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, trusted.ClientIP(req))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.1")
	require.NoError(t, err)

	var seen string
	h := ClientIPMiddleware(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.4", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", seen)
}
