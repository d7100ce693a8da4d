package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Credited("project")
		m.TxConflict()
		m.TxFailed()
		m.Refreshed(RefreshOK)
		m.Graded(true)
		m.BreakerStateChanged("llm", "closed", "open")
	})
}

func TestCounters(t *testing.T) {
	m := NewRegistry()

	m.Credited("project")
	m.Credited("project")
	m.Credited("course")
	m.TxConflict()
	m.Refreshed(RefreshFailed)
	m.Graded(false)
	m.BreakerStateChanged("llm-gemini", "closed", "open")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.credits.WithLabelValues("project")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.credits.WithLabelValues("course")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(RefreshFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gradings.WithLabelValues("incorrect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("llm-gemini")))

	m.BreakerStateChanged("llm-gemini", "open", "half-open")
	assert.Equal(t, 0.5, testutil.ToFloat64(m.breakerState.WithLabelValues("llm-gemini")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, reg)
	assert.Panics(t, func() { New(reg, reg) })
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewRegistry()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCounter.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{endpoint="/ping",method="GET",status="200"} 1`), body)
}
