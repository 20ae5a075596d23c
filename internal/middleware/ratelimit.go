package middleware

import (
	"net/http"
	"sync"
	"time"

	"boardflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a client's limiter survives without requests.
const idleLimiterTTL = 10 * time.Minute

// DropCounter counts rejected requests.
type DropCounter interface {
	IncRateLimitDrop(prefix string)
}

// clientLimiters hands out one token bucket per client key.
type clientLimiters struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	clients *cache.Cache
}

func newClientLimiters(rpm, burst int) *clientLimiters {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm // default burst equals a minute worth
	}
	return &clientLimiters{
		perSec:  rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
		clients: cache.New(idleLimiterTTL, 2*idleLimiterTTL),
	}
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.clients.Get(key); ok {
		lim := v.(*rate.Limiter)
		// sliding expiry
		l.clients.Set(key, lim, cache.DefaultExpiration)
		return lim
	}
	lim := rate.NewLimiter(l.perSec, l.burst)
	l.clients.Set(key, lim, cache.DefaultExpiration)
	return lim
}

// RateLimitMiddleware enables per-IP rate limiting controlled by
// cfg.RateLimiting. If disabled, it no-ops. drops may be nil.
func RateLimitMiddleware(cfg config.SecurityConfig, drops DropCounter) gin.HandlerFunc {
	rl := cfg.RateLimiting
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newClientLimiters(rl.RequestsPerMinute, rl.Burst)
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !limiters.get(key).Allow() {
			if drops != nil {
				drops.IncRateLimitDrop("global")
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
