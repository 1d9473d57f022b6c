package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"modelrt/internal/manager"
)

const namespace = "modelrt"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generate",
			Name:      "tokens_total",
			Help:      "Tokens streamed to clients",
		},
		[]string{"finish_reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal, tokensTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working behind the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// Pattern is only known after routing.
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// inflightMiddleware tracks in-flight requests per route; it must run inside
// the router so the route pattern is resolved.
func inflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()
		next.ServeHTTP(w, r)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

// runtimeCollector exports the manager's health snapshot on each scrape.
type runtimeCollector struct {
	health func() manager.HealthSnapshot

	ready      *prometheus.Desc
	memory     *prometheus.Desc
	threshold  *prometheus.Desc
	sessions   *prometheus.Desc
	generating *prometheus.Desc
	waiters    *prometheus.Desc
	evictions  *prometheus.Desc
	forced     *prometheus.Desc
	underPress *prometheus.Desc
}

// NewRuntimeCollector returns a collector over a health snapshot source.
func NewRuntimeCollector(health func() manager.HealthSnapshot) prometheus.Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "runtime", name), help, labels, nil)
	}
	return &runtimeCollector{
		health:     health,
		ready:      d("state", "Runtime handle state (1 for the current state)", "state"),
		memory:     d("memory_used_bytes", "Process resident memory"),
		threshold:  d("memory_threshold_bytes", "Configured memory pressure threshold"),
		sessions:   d("sessions_active", "Leased sessions"),
		generating: d("sessions_generating", "Sessions with a running generation"),
		waiters:    d("lease_waiters", "Lease calls waiting for a slot"),
		evictions:  d("evictions_total", "Idle sessions evicted under memory pressure"),
		forced:     d("forced_cancellations_total", "Generations force-cancelled"),
		underPress: d("under_pressure", "1 when memory use is above the threshold"),
	}
}

func (c *runtimeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.ready, c.memory, c.threshold, c.sessions, c.generating, c.waiters, c.evictions, c.forced, c.underPress} {
		ch <- d
	}
}

func (c *runtimeCollector) Collect(ch chan<- prometheus.Metric) {
	h := c.health()
	ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, 1, string(h.RuntimeState))
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(h.MemoryUsedBytes))
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, float64(h.MemoryThresholdBytes))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(h.ActiveSessions))
	ch <- prometheus.MustNewConstMetric(c.generating, prometheus.GaugeValue, float64(h.GeneratingSessions))
	ch <- prometheus.MustNewConstMetric(c.waiters, prometheus.GaugeValue, float64(h.Waiters))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(h.Evictions))
	ch <- prometheus.MustNewConstMetric(c.forced, prometheus.CounterValue, float64(h.ForcedCancellations))
	pressure := 0.0
	if h.UnderPressure {
		pressure = 1
	}
	ch <- prometheus.MustNewConstMetric(c.underPress, prometheus.GaugeValue, pressure)
}
