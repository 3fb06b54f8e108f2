package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's Prometheus collectors on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	EntriesCreated   prometheus.Counter
	EntriesDeleted   prometheus.Counter
	EntryStages      *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	MediaUploadBytes prometheus.Counter
	OrphanedMedia    *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		EntriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academy", Name: "entries_created_total",
			Help: "Learning log entries committed.",
		}),
		EntriesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academy", Name: "entries_deleted_total",
			Help: "Learning log entries deleted.",
		}),
		EntryStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academy", Name: "entry_stage_total",
			Help: "Entry creation stage transitions.",
		}, []string{"stage"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academy", Name: "notifications_total",
			Help: "Guardian notifications by outcome.",
		}, []string{"outcome"}),
		MediaUploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academy", Name: "media_upload_bytes_total",
			Help: "Bytes uploaded to the blob store.",
		}),
		OrphanedMedia: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academy", Name: "orphaned_media_total",
			Help: "Blob deletes that failed, by outcome of the follow-up.",
		}, []string{"outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "academy", Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EntriesCreated, m.EntriesDeleted, m.EntryStages, m.Notifications,
		m.MediaUploadBytes, m.OrphanedMedia, m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// GinMiddleware observes request latency by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
