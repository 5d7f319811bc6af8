package gateway

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterTTL is how long an idle client keeps its token bucket before the
// sweep reclaims it.
const limiterTTL = 10 * time.Minute

// clientLimiter is one client's token bucket plus its last activity stamp.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimit returns a per-client token-bucket middleware. Clients are keyed
// by remote IP (chi's RealIP middleware runs earlier, so proxied deployments
// see the forwarded address). Over-limit requests get 429.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}

	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)
	lastSweep := time.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				key = r.RemoteAddr
			}

			mu.Lock()
			now := time.Now()
			if now.Sub(lastSweep) > limiterTTL {
				for k, c := range clients {
					if now.Sub(c.lastSeen) > limiterTTL {
						delete(clients, k)
					}
				}
				lastSweep = now
			}
			c, ok := clients[key]
			if !ok {
				c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				clients[key] = c
			}
			c.lastSeen = now
			allowed := c.limiter.Allow()
			mu.Unlock()

			if !allowed {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
