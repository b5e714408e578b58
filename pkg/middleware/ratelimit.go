package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"golang.org/x/time/rate"
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

func NewClientLimiter(cfg config.RateLimitConfig) *ClientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RequestsPerSecond))
	}
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   max(burst, 1),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow takes one token from client's bucket.
func (l *ClientLimiter) Allow(client string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than the idle TTL and returns how
// many were removed.
func (l *ClientLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			removed++
		}
	}
	return removed
}

// RateLimit rejects requests over the client's budget with 429. Health and
// metrics paths are never limited. onReject may be nil.
func RateLimit(l *ClientLimiter, onReject func()) func(http.Handler) http.Handler {
	retryAfter := "1"
	if l.limit > 0 && l.limit < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(clientKey(r)) {
				if onReject != nil {
					onReject()
				}
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
