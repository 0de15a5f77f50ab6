package middlewares

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// DefaultBlockDuration is how long a client stays blocked after tripping the
// user agent policy.
const DefaultBlockDuration = time.Hour

// slowRequestThreshold is the latency above which a request is logged.
const slowRequestThreshold = 2 * time.Second

// scannerAgents are user agent fragments of well known probing tools. A match
// blocks the client address for DefaultBlockDuration.
var scannerAgents = []string{"sqlmap", "nikto", "nmap", "masscan", "zap"}

// IPPolicy keeps a set of temporarily blocked client addresses and enforces
// the user agent policy on every request. It also attaches the resolved
// client address to the request context and logs slow requests.
type IPPolicy struct {
	mu      sync.Mutex
	blocked map[string]time.Time

	blockDuration time.Duration
}

// NewIPPolicy creates an IPPolicy with the default block duration.
func NewIPPolicy() *IPPolicy {
	return &IPPolicy{
		blocked:       map[string]time.Time{},
		blockDuration: DefaultBlockDuration,
	}
}

// Middleware applies the policy to next.
func (p *IPPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, err := extractClientIP(r)
		if err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("extracting client ip")
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextIPAddress, ip))

		if p.IsBlocked(ip, time.Now()) {
			WriteError(w, errors.PermissionDenied("requests from this address are blocked"))
			return
		}

		if agent := strings.ToLower(r.UserAgent()); agent != "" {
			for _, fragment := range scannerAgents {
				if strings.Contains(agent, fragment) {
					p.Block(ip, time.Now())
					log.Ctx(r.Context()).Warn().
						Str("ip", ip).
						Str("userAgent", r.UserAgent()).
						Msg("blocking scanner user agent")
					WriteError(w, errors.PermissionDenied("requests from this address are blocked"))
					return
				}
			}
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		if elapsed := time.Since(start); elapsed > slowRequestThreshold {
			log.Ctx(r.Context()).Warn().
				Str("path", r.URL.Path).
				Dur("elapsed", elapsed).
				Msg("slow request")
		}
	})
}

// Block adds ip to the blocked set until now plus the block duration.
func (p *IPPolicy) Block(ip string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[ip] = now.Add(p.blockDuration)
}

// IsBlocked reports whether ip is still blocked at now. Expired entries are
// dropped on lookup.
func (p *IPPolicy) IsBlocked(ip string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	until, ok := p.blocked[ip]
	if !ok {
		return false
	}
	if now.After(until) {
		delete(p.blocked, ip)
		return false
	}
	return true
}
