package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/shortly/shortly/go-server/internal/metrics"
)

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	setupTest(t)

	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/:slug", func(c *gin.Context) { c.Status(http.StatusMovedPermanently) })

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/:slug", "301")
	before := testutil.ToFloat64(counter)

	get(router, "/abc")
	get(router, "/def")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}

func TestComputeApproximateRequestSize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/urls", nil)
	req.ContentLength = 100
	req.Header.Set("Content-Type", "application/json")

	size := computeApproximateRequestSize(req)

	assert.GreaterOrEqual(t, size, int64(100+len("POST")+len("/api/urls")+len("Content-Type")+len("application/json")))
}
