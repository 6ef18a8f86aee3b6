package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvchat"

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Len() int
}

// Metrics owns the gateway's Prometheus registry. It observes every chat
// reply and every HTTP request.
type Metrics struct {
	registry   *prometheus.Registry
	queries    *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	oracleMiss *prometheus.CounterVec
	confidence prometheus.Histogram
	requests   *prometheus.HistogramVec
}

var _ chat.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors on a private registry. sessions may be
// nil, in which case no session gauge is exported.
func NewMetrics(sessions SessionCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered questions by reply source and intent.",
		}, []string{"source", "intent"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback replies by trigger reason and action.",
		}, []string{"reason", "action"}),
		oracleMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_bypass_total",
			Help:      "Questions the oracle could not answer, by reason.",
		}, []string{"reason"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_confidence",
			Help:      "Confidence of every reply.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95},
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries, m.fallbacks, m.oracleMiss, m.confidence, m.requests,
	)
	if sessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live chat sessions.",
		}, func() float64 { return float64(sessions.Len()) }))
	}
	return m
}

// ObserveReply implements chat.Observer.
func (m *Metrics) ObserveReply(r chat.Reply) {
	m.queries.WithLabelValues(string(r.Source), string(r.Intent)).Inc()
	m.confidence.Observe(r.Confidence)
	if r.Fallback != nil {
		m.fallbacks.WithLabelValues(string(r.Fallback.Reason), string(r.Fallback.Action)).Inc()
	}
	if r.OracleError != "" {
		m.oracleMiss.WithLabelValues(r.OracleError).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry so other modules can add collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// instrument records request latency labelled with the matched chi route
// pattern, keeping label cardinality bounded.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
