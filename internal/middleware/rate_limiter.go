package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// OwnerRateLimiter limits requests per owner so one busy terminal cannot starve the others
type OwnerRateLimiter struct {
	mu       sync.Mutex
	limiters map[uint]*limiterEntry
	rate     rate.Limit
	burst    int
	entryTTL time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOwnerRateLimiter allows perSecond requests per owner with the given burst
func NewOwnerRateLimiter(perSecond float64, burst int) *OwnerRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &OwnerRateLimiter{
		limiters: make(map[uint]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		entryTTL: 10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *OwnerRateLimiter) limiter(ownerID uint) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[ownerID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ownerID] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Cleanup drops limiters that have not been used for a while
func (rl *OwnerRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.entryTTL)
	for ownerID, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ownerID)
		}
	}
}

// Middleware applies the limit. It must run after Auth.
func (rl *OwnerRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := GetOwnerID(c)
		if ownerID == 0 {
			c.Next()
			return
		}

		limiter := rl.limiter(ownerID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		c.Next()
	}
}
