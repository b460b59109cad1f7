package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors. It is kept separate from the
	// global default registry so tests can register handlers freely.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imageforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imageforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 15), // 5ms to ~80s
		},
		[]string{"method", "route"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imageforge",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation requests by outcome code.",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imageforge",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of generation requests.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"outcome"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imageforge",
			Subsystem: "provider",
			Name:      "poll_attempts",
			Help:      "Number of status polls per submitted job.",
			Buckets:   prometheus.LinearBuckets(1, 2, 12),
		},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imageforge",
			Subsystem: "credits",
			Name:      "refunds_total",
			Help:      "Compensating refunds by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		generations,
		generationDuration,
		pollAttempts,
		refunds,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveGeneration records the outcome of one generation request.
func ObserveGeneration(outcome string, elapsed time.Duration) {
	generations.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObservePollAttempts records how many polls a submitted job needed.
func ObservePollAttempts(n int) {
	pollAttempts.Observe(float64(n))
}

// ObserveRefund records a compensation attempt; result is "refunded",
// "noop" or "error".
func ObserveRefund(result string) {
	refunds.WithLabelValues(result).Inc()
}
