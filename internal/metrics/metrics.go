package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	fanoutPublished *prometheus.CounterVec
	fanoutFailed    *prometheus.CounterVec
	fanoutDropped   prometheus.Counter
	socketClients   prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		fanoutPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scope_chat",
			Name:      "fanout_published_total",
			Help:      "Chat events handed to the fan-out provider.",
		}, []string{"kind"}),
		fanoutFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scope_chat",
			Name:      "fanout_failed_total",
			Help:      "Chat events the fan-out provider rejected.",
		}, []string{"kind"}),
		fanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scope_chat",
			Name:      "fanout_dropped_total",
			Help:      "Chat events dropped because the fan-out queue was full or closed.",
		}),
		socketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scope_chat",
			Name:      "websocket_clients",
			Help:      "Currently connected socket clients.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scope_chat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scope_chat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.fanoutPublished,
		m.fanoutFailed,
		m.fanoutDropped,
		m.socketClients,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) FanoutPublished(kind string) {
	if m != nil {
		m.fanoutPublished.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FanoutFailed(kind string) {
	if m != nil {
		m.fanoutFailed.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FanoutDropped() {
	if m != nil {
		m.fanoutDropped.Inc()
	}
}

func (m *Metrics) SocketConnected() {
	if m != nil {
		m.socketClients.Inc()
	}
}

func (m *Metrics) SocketDisconnected() {
	if m != nil {
		m.socketClients.Dec()
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
