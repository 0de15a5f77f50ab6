package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// RateLimiterConfig specifies a default rate limiting configuration, and
// optional named buckets with their own budgets. Routes opt into a bucket;
// everything else shares the default window.
type RateLimiterConfig struct {
	Default RateLimiterRouteConfig

	Buckets map[string]RateLimiterRouteConfig
}

// RateLimiterRouteConfig specifies the maximum requests per interval, and
// interval length for a rate limiting rule.
type RateLimiterRouteConfig struct {
	MaxRPI   uint64
	Interval time.Duration
}

// RateLimiter tracks request budgets per caller. Each bucket keeps its own
// counters, keyed by the authenticated account when present or the client
// address otherwise.
type RateLimiter struct {
	defaultStore limiter.Store
	buckets      map[string]limiter.Store
}

// NewRateLimiter creates a rate limiter from cfg.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	defaultStore, err := newStore(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("creating default limiter store: %s", err)
	}
	buckets := make(map[string]limiter.Store, len(cfg.Buckets))
	for name, bucketCfg := range cfg.Buckets {
		buckets[name], err = newStore(bucketCfg)
		if err != nil {
			return nil, fmt.Errorf("creating limiter store for bucket %s: %s", name, err)
		}
	}
	return &RateLimiter{defaultStore: defaultStore, buckets: buckets}, nil
}

// Limit returns a middleware charging requests against the named bucket.
// An unknown bucket name charges against the default budget.
func (rl *RateLimiter) Limit(bucket string) mux.MiddlewareFunc {
	store, ok := rl.buckets[bucket]
	if !ok {
		store = rl.defaultStore
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := rateLimitKey(r)
			if err != nil {
				WriteError(w, fmt.Errorf("extracting rate limit key: %s", err))
				return
			}

			_, _, reset, ok, err := store.Take(r.Context(), bucket+":"+key)
			if err != nil {
				WriteError(w, fmt.Errorf("taking rate limit token: %s", err))
				return
			}
			if !ok {
				retryAfter := int64(time.Until(time.Unix(0, int64(reset))) / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				WriteError(w, errors.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey applies a priority based key for the rate limiting:
// 1. The authenticated account, when the Authentication middleware ran first.
// 2. If 1. isn't present, an existing X-Forwarded-For IP included by a load-balancer in the infrastructure.
// 3. If 2. isn't present, the connection remote address.
func rateLimitKey(r *http.Request) (string, error) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user.ID.String(), nil
	}
	ip, err := extractClientIP(r)
	if err != nil {
		return "", fmt.Errorf("extract client ip: %s", err)
	}
	return ip, nil
}

func newStore(cfg RateLimiterRouteConfig) (limiter.Store, error) {
	return memorystore.New(&memorystore.Config{
		Tokens:   cfg.MaxRPI,
		Interval: cfg.Interval,
	})
}

func extractClientIP(r *http.Request) (string, error) {
	// Use X-Forwarded-For IP if present.
	// i.g: https://cloud.google.com/load-balancing/docs/https#x-forwarded-for_header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.Split(xff, ",")[0]
		return strings.TrimSpace(ip), nil
	}

	// Use the request remote address.
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("getting ip from remote addr: %s", err)
	}
	return ip, nil
}
