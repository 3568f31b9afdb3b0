package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shortly/shortly/go-server/internal/metrics"
)

// MetricsMiddleware collects HTTP metrics for each request
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Track in-flight requests
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		// Record start time
		start := time.Now()

		// Get request size
		requestSize := computeApproximateRequestSize(c.Request)

		// Process request
		c.Next()

		// Route pattern keeps label cardinality bounded; unmatched paths share one label.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		// Get response size; gin reports -1 when nothing was written
		responseSize := int64(c.Writer.Size())
		if responseSize < 0 {
			responseSize = 0
		}

		// Record metrics
		metrics.RecordHTTPMetrics(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			requestSize,
			responseSize,
		)
	}
}

// computeApproximateRequestSize calculates approximate request size
func computeApproximateRequestSize(r *http.Request) int64 {
	s := int64(0)

	// Add content length if available
	if r.ContentLength > 0 {
		s += r.ContentLength
	}

	// Add size of method, URL and headers
	s += int64(len(r.Method))
	s += int64(len(r.URL.String()))
	for name, values := range r.Header {
		s += int64(len(name))
		for _, v := range values {
			s += int64(len(v))
		}
	}

	return s
}
