package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

func TestLimitByAddress(t *testing.T) {
	t.Parallel()

	rl, err := NewRateLimiter(RateLimiterConfig{
		Default: RateLimiterRouteConfig{MaxRPI: 5, Interval: time.Hour},
	})
	require.NoError(t, err)
	handler := rl.Limit("default")(dummyHandler{})

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, requestFromAddr(t, "10.0.0.1"))
		require.Equal(t, http.StatusOK, res.Code)
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestFromAddr(t, "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	require.NotEmpty(t, res.Header().Get("Retry-After"))
	var body errors.ServiceError
	require.NoError(t, restJSON.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, errors.CodeRateLimited, body.Code)

	// A different address keeps its own budget.
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, requestFromAddr(t, "10.0.0.2"))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestLimitPrefersAuthenticatedAccount(t *testing.T) {
	t.Parallel()

	rl, err := NewRateLimiter(RateLimiterConfig{
		Default: RateLimiterRouteConfig{MaxRPI: 2, Interval: time.Hour},
	})
	require.NoError(t, err)
	handler := rl.Limit("default")(dummyHandler{})

	userID := uuid.New()
	for i := 0; i < 2; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, requestFromUser(t, userID, "10.0.0.1"))
		require.Equal(t, http.StatusOK, res.Code)
	}

	// Same account from another address is still over budget.
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestFromUser(t, userID, "10.0.0.9"))
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	// Another account from the first address is not.
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, requestFromUser(t, uuid.New(), "10.0.0.1"))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestBucketsAreIndependent(t *testing.T) {
	t.Parallel()

	rl, err := NewRateLimiter(RateLimiterConfig{
		Default: RateLimiterRouteConfig{MaxRPI: 100, Interval: time.Hour},
		Buckets: map[string]RateLimiterRouteConfig{
			"auth": {MaxRPI: 1, Interval: time.Hour},
		},
	})
	require.NoError(t, err)
	authHandler := rl.Limit("auth")(dummyHandler{})
	defaultHandler := rl.Limit("default")(dummyHandler{})

	res := httptest.NewRecorder()
	authHandler.ServeHTTP(res, requestFromAddr(t, "10.0.0.1"))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	authHandler.ServeHTTP(res, requestFromAddr(t, "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	// The default bucket still has budget for the same client.
	res = httptest.NewRecorder()
	defaultHandler.ServeHTTP(res, requestFromAddr(t, "10.0.0.1"))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestLimitUsesForwardedFor(t *testing.T) {
	t.Parallel()

	rl, err := NewRateLimiter(RateLimiterConfig{
		Default: RateLimiterRouteConfig{MaxRPI: 1, Interval: time.Hour},
	})
	require.NoError(t, err)
	handler := rl.Limit("default")(dummyHandler{})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "172.16.0.1:9999"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 172.16.0.1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusOK, res.Code)

	// Same forwarded client through another proxy hop is the same budget.
	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "172.16.0.2:9999"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
}

type dummyHandler struct{}

func (d dummyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func requestFromAddr(t *testing.T, ip string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ip + ":4321"
	return r
}

func requestFromUser(t *testing.T, userID uuid.UUID, ip string) *http.Request {
	t.Helper()
	r := requestFromAddr(t, ip)
	ctx := context.WithValue(r.Context(), ContextKeyUser, &userdir.User{ID: userID})
	return r.WithContext(ctx)
}
