package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) {
	t.Helper()
	// Initialize logger for tests
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	// Set Gin to test mode
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T, rate int, window time.Duration) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(rate, window)
	t.Cleanup(rl.Stop)
	return rl
}

func take(t *testing.T, l Limiter, key string) Decision {
	t.Helper()
	d, err := l.Take(context.Background(), key)
	require.NoError(t, err)
	return d
}

func limitedRouter(l Limiter) *gin.Engine {
	router := gin.New()
	router.Use(RateLimit(l))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	router.GET("/other", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "other"})
	})
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRateLimiter(t *testing.T) {
	setupTest(t)

	rl := newLimiter(t, 10, 1*time.Minute)

	assert.NotNil(t, rl.requests)
	assert.Equal(t, 10, rl.rate)
	assert.Equal(t, 1*time.Minute, rl.window)
	assert.Equal(t, "memory", rl.Backend())
}

func TestRateLimiter_Take_CountsDown(t *testing.T) {
	setupTest(t)

	rl := newLimiter(t, 3, 1*time.Minute)

	for want := 2; want >= 0; want-- {
		d := take(t, rl, "192.168.1.1")
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, want, d.Remaining)
	}

	d := take(t, rl, "192.168.1.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestRateLimiter_Take_WindowReset(t *testing.T) {
	setupTest(t)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newLimiter(t, 2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, take(t, rl, "ip").Allowed)
	assert.True(t, take(t, rl, "ip").Allowed)
	denied := take(t, rl, "ip")
	assert.False(t, denied.Allowed)
	assert.Equal(t, now.Add(time.Minute), denied.ResetAt)

	now = now.Add(time.Minute)
	d := take(t, rl, "ip")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestRateLimiter_Take_MultipleClients(t *testing.T) {
	setupTest(t)

	rl := newLimiter(t, 3, 1*time.Minute)
	clients := []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"}

	for i := 0; i < 3; i++ {
		for _, ip := range clients {
			assert.True(t, take(t, rl, ip).Allowed)
		}
	}
	for _, ip := range clients {
		assert.False(t, take(t, rl, ip).Allowed)
	}
}

func TestRateLimiter_EvictExpired(t *testing.T) {
	setupTest(t)

	now := time.Now()
	rl := newLimiter(t, 5, time.Minute)
	rl.now = func() time.Time { return now }

	take(t, rl, "old")
	now = now.Add(2 * time.Minute)
	take(t, rl, "fresh")

	rl.evictExpired()

	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	assert.NotContains(t, rl.requests, "old")
	assert.Contains(t, rl.requests, "fresh")
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	setupTest(t)

	rl := newLimiter(t, 100, 1*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = rl.Take(context.Background(), "192.168.1.1")
		}()
	}
	wg.Wait()

	rl.mutex.RLock()
	count := rl.requests["192.168.1.1"].count
	rl.mutex.RUnlock()

	assert.Equal(t, 50, count)
}

func TestRateLimit_Middleware_Headers(t *testing.T) {
	setupTest(t)

	router := limitedRouter(newLimiter(t, 2, time.Minute))

	w := get(router, "/test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Add(time.Minute).Unix(), reset, 2)

	w = get(router, "/test")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_Middleware_BlockRequest(t *testing.T) {
	setupTest(t)

	router := limitedRouter(newLimiter(t, 2, 1*time.Minute))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(router, "/test").Code)
	}

	// the limit is per client, not per path
	w := get(router, "/other")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, w.Body.String(), "retry_after")
}

type failingLimiter struct{}

func (failingLimiter) Take(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}
func (failingLimiter) Backend() string { return "broken" }

func TestRateLimit_Middleware_FailOpen(t *testing.T) {
	setupTest(t)

	w := get(limitedRouter(failingLimiter{}), "/test")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
