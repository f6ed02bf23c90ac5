// Package monitoring exposes Prometheus metrics for the HTTP surface and the tracking pipeline.
package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AnalyticsEvents *prometheus.CounterVec
	LeadsCaptured   *prometheus.CounterVec
	Notifications   *prometheus.CounterVec

	PageCacheHits   prometheus.Counter
	PageCacheMisses prometheus.Counter
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sundae_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sundae_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path"},
			),
			HTTPRequestsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sundae_http_requests_in_flight",
					Help: "Number of HTTP requests currently being processed",
				},
			),
			AnalyticsEvents: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sundae_analytics_events_total",
					Help: "View and click recordings by outcome",
				},
				[]string{"type", "outcome"},
			),
			LeadsCaptured: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sundae_leads_total",
					Help: "Lead form submissions by kind and result",
				},
				[]string{"kind", "result"},
			),
			Notifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sundae_notifications_total",
					Help: "Owner notification emails by outcome",
				},
				[]string{"outcome"},
			),
			PageCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sundae_page_cache_hits_total",
					Help: "Public page renders served from cache",
				},
			),
			PageCacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sundae_page_cache_misses_total",
					Help: "Public page renders that missed the cache",
				},
			),
		}
	})
	return metrics
}

// GinHandler serves the Prometheus exposition format.
func GinHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Handler returns the plain net/http exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts, latency, and in-flight requests per route.
func Middleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordAnalyticsEvent(eventType, outcome string) {
	Get().AnalyticsEvents.WithLabelValues(eventType, outcome).Inc()
}

func RecordLead(kind, result string) {
	Get().LeadsCaptured.WithLabelValues(kind, result).Inc()
}

func RecordNotification(outcome string) {
	Get().Notifications.WithLabelValues(outcome).Inc()
}

// RecordPageCache counts a cache lookup.
func RecordPageCache(hit bool) {
	if hit {
		Get().PageCacheHits.Inc()
		return
	}
	Get().PageCacheMisses.Inc()
}
