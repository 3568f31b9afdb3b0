package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/metrics"
)

// Decision is the outcome of counting one request against a fixed window.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
	Backend() string
}

// RateLimiter is the in-process fixed window limiter.
type RateLimiter struct {
	requests map[string]*clientBucket
	mutex    sync.RWMutex
	rate     int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(requestsPerWindow int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*clientBucket),
		rate:     requestsPerWindow,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Backend() string { return "memory" }

func (rl *RateLimiter) Take(_ context.Context, key string) (Decision, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	bucket, exists := rl.requests[key]
	if !exists || !now.Before(bucket.resetTime) {
		bucket = &clientBucket{resetTime: now.Add(rl.window)}
		rl.requests[key] = bucket
	}

	d := Decision{Limit: rl.rate, ResetAt: bucket.resetTime}
	if bucket.count >= rl.rate {
		return d, nil
	}

	bucket.count++
	d.Allowed = true
	d.Remaining = rl.rate - bucket.count
	return d, nil
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *RateLimiter) evictExpired() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, bucket := range rl.requests {
		if !now.Before(bucket.resetTime) {
			delete(rl.requests, key)
		}
	}
}

// RateLimit limits requests per client IP and reports the counter in
// X-RateLimit-* headers. A limiter error lets the request through.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "RateLimit"), zap.String("backend", limiter.Backend()))

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		d, err := limiter.Take(c.Request.Context(), clientIP)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}

			logger.Warn("Rate limit exceeded",
				zap.String("ip", clientIP),
				zap.String("path", c.Request.URL.Path),
			)
			metrics.RateLimitedRequestsTotal.WithLabelValues(limiter.Backend()).Inc()

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
