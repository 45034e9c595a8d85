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

// Metrics holds the service's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthCacheLookupsTotal *prometheus.CounterVec
	AuthFailuresTotal     *prometheus.CounterVec
	AuthzDenialsTotal     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		AuthCacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_authcache_lookups_total",
			Help: "Auth cache lookups by result.",
		}, []string{"result"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_auth_failures_total",
			Help: "Failed authentications by error kind.",
		}, []string{"kind"}),

		AuthzDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_authz_denials_total",
			Help: "Authorization gate denials by mode.",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthCacheLookupsTotal,
		m.AuthFailuresTotal,
		m.AuthzDenialsTotal,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncAuthCacheLookup counts a lookup; result is hit, miss or error.
func (m *Metrics) IncAuthCacheLookup(result string) {
	if m == nil {
		return
	}
	m.AuthCacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAuthFailure(kind string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncAuthzDenial(mode string) {
	if m == nil {
		return
	}
	m.AuthzDenialsTotal.WithLabelValues(mode).Inc()
}

// Middleware records request count and latency labelled by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
