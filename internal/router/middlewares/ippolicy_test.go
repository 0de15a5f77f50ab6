package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIPPolicyBlocksScanners(t *testing.T) {
	t.Parallel()

	policy := NewIPPolicy()
	handler := policy.Middleware(dummyHandler{})

	r := requestFromAddr(t, "198.51.100.4")
	r.Header.Set("User-Agent", "sqlmap/1.7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusForbidden, res.Code)

	// The address stays blocked for regular traffic too.
	r = requestFromAddr(t, "198.51.100.4")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusForbidden, res.Code)

	// Other addresses are unaffected.
	r = requestFromAddr(t, "198.51.100.5")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestIPPolicyBlockExpires(t *testing.T) {
	t.Parallel()

	policy := NewIPPolicy()
	now := time.Now()
	policy.Block("203.0.113.9", now)

	require.True(t, policy.IsBlocked("203.0.113.9", now))
	require.True(t, policy.IsBlocked("203.0.113.9", now.Add(DefaultBlockDuration-time.Minute)))
	require.False(t, policy.IsBlocked("203.0.113.9", now.Add(DefaultBlockDuration+time.Minute)))
}

func TestIPPolicyAttachesClientIP(t *testing.T) {
	t.Parallel()

	policy := NewIPPolicy()
	var gotIP string
	handler := policy.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP, _ = IPFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := requestFromAddr(t, "192.0.2.33")
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.33")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "203.0.113.7", gotIP)
}
