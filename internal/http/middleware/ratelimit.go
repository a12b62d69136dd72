package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// bucketIdleTTL is how long an untouched bucket is kept. A bucket idle for
// longer than a minute has refilled completely, so dropping it loses nothing.
const bucketIdleTTL = 5 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller. Idle buckets are
// pruned so the map does not grow with every client seen.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per caller with a burst of the
// same size. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{limit: rate.Inf}
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (l *RateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastPrune) >= bucketIdleTTL {
		l.pruneLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= bucketIdleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastPrune = now
}

// Middleware rejects callers over their budget with 429 and Retry-After.
// Authenticated callers are keyed by user id, others by client ip.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit == rate.Inf {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if rc := RequestContext(c); rc.UserID > 0 {
			key = fmt.Sprintf("user:%s:%d", rc.Tenant, rc.UserID)
		}

		b := l.bucket(key)
		res := b.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			c.Header("Retry-After", fmt.Sprint(int(math.Ceil(delay.Seconds()))))
			abortJSON(c, http.StatusTooManyRequests, "rate_limited", "too many export requests, try again later")
			return
		}
		c.Next()
	}
}
