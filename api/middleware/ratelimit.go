package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleCutoff    = time.Hour
)

// limiterTable tracks one token bucket per caller identity.
type limiterTable struct {
	mu      sync.Mutex
	cfg     config.RateLimitConfig
	buckets map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (t *limiterTable) take(identity string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.buckets[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst),
		}
		t.buckets[identity] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// sweep drops buckets idle past the cutoff so the table cannot grow without
// bound under churning identities.
func (t *limiterTable) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleCutoff)
		t.mu.Lock()
		for id, entry := range t.buckets {
			if entry.lastSeen.Before(cutoff) {
				delete(t.buckets, id)
			}
		}
		t.mu.Unlock()
	}
}

// RateLimit applies a token bucket per caller. The identity is the API key
// when auth ran earlier in the chain, the client IP otherwise.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	table := &limiterTable{cfg: cfg, buckets: make(map[string]*limiterEntry)}
	go table.sweep()

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key, ok := c.Get("api_key"); ok {
			identity = key.(string)
		}

		if !table.take(identity).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResult{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}
