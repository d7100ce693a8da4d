// Package metrics defines the Prometheus collectors exported by the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deeplearn"

// Refresh outcomes.
const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
)

// Metrics holds the service collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	credits         *prometheus.CounterVec
	txConflicts     prometheus.Counter
	txAborts        prometheus.Counter
	refreshes       *prometheus.CounterVec
	gradings        *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_credits_total",
			Help:      "First-time credits recorded on learner profiles.",
		}, []string{"kind"}),
		txConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_tx_conflicts_total",
			Help:      "Store transactions rerun after a write conflict.",
		}),
		txAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_tx_failures_total",
			Help:      "Ledger transactions that failed to commit.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_refresh_total",
			Help:      "Recommendation refreshes by outcome.",
		}, []string{"result"}),
		gradings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gradings_total",
			Help:      "Project submissions graded, by verdict.",
		}, []string{"verdict"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_breaker_open",
			Help:      "1 when the LLM circuit breaker is open, 0.5 half-open, 0 closed.",
		}, []string{"name"}),
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15},
		}, []string{"method", "endpoint"}),
	}
	reg.MustRegister(
		m.credits,
		m.txConflicts,
		m.txAborts,
		m.refreshes,
		m.gradings,
		m.breakerState,
		m.requestCounter,
		m.requestDuration,
	)
	return m
}

// NewRegistry returns metrics backed by a fresh registry.
func NewRegistry() *Metrics {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

// Credited counts a first-time project or course credit.
func (m *Metrics) Credited(kind string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(kind).Inc()
}

// TxConflict counts a transaction rerun.
func (m *Metrics) TxConflict() {
	if m == nil {
		return
	}
	m.txConflicts.Inc()
}

// TxFailed counts a transaction that did not commit.
func (m *Metrics) TxFailed() {
	if m == nil {
		return
	}
	m.txAborts.Inc()
}

// Refreshed counts a recommendation refresh outcome.
func (m *Metrics) Refreshed(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Graded counts a grading verdict.
func (m *Metrics) Graded(correct bool) {
	if m == nil {
		return
	}
	verdict := "incorrect"
	if correct {
		verdict = "correct"
	}
	m.gradings.WithLabelValues(verdict).Inc()
}

// BreakerStateChanged records a circuit breaker transition.
func (m *Metrics) BreakerStateChanged(name, _, to string) {
	if m == nil {
		return
	}
	var v float64
	switch to {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

// Middleware records request counts and latencies per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	var h http.Handler
	if m == nil || m.gatherer == nil {
		h = promhttp.Handler()
	} else {
		h = promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
