package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/models"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveClassification("learned", "degenerate")
	m.ObserveClassification("learned", "degenerate")
	m.ObserveClassification("strict", "success")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.classifyRequests.WithLabelValues("learned", "degenerate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifyRequests.WithLabelValues("strict", "success")))

	m.ObserveState(classifier.StateReady)
	assert.Equal(t, float64(classifier.StateReady), testutil.ToFloat64(m.modelState))

	m.ObserveTraining(models.RunStatusSucceeded, 1500*time.Millisecond)
	m.ObserveTraining(models.RunStatusFailed, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trainingRuns.WithLabelValues(models.RunStatusSucceeded)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.trainingRuns))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/coffee-types/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/api/coffee-types/1", "/api/coffee-types/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/api/coffee-types/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "coffee_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
