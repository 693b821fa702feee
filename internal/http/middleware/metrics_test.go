package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics("/api/events"))
	r.GET("/api/appointments/:id", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.GET("/api/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/appointments/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))
	baseStream := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/events", "200"))
	baseLatSeries := testutil.CollectAndCount(httpLat)

	for _, p := range []string{"/api/appointments/1", "/api/appointments/2", "/nope/123", "/api/events"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/appointments/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/events", "200")); got != baseStream+1 {
		t.Fatalf("stream counter = %v; want %v", got, baseStream+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}

	// /api/appointments/:id and unmatched add latency series; the stream does not.
	if got := testutil.CollectAndCount(httpLat); got > baseLatSeries+2 {
		t.Fatalf("latency series = %d; stream route should be excluded", got)
	}
}
