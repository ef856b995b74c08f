package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	OnlineUsers     prometheus.Gauge
	LiveConnections prometheus.Gauge
	Pushes          *prometheus.CounterVec
	MessagesStored  prometheus.Counter
	StoreErrors     *prometheus.CounterVec
	OutboxRelayed   prometheus.Counter
	OutboxFailures  prometheus.Counter
	OfflinePushes   prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

const namespace = "youapp"

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "presence_online_users",
			Help: "Users currently registered on a live connection.",
		}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_connections",
			Help: "Open live channel connections.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "live_pushes_total",
			Help: "Live pushes by result (delivered, dropped).",
		}, []string{"result"}),
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_stored_total",
			Help: "Messages persisted.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_errors_total",
			Help: "Storage failures by operation.",
		}, []string{"operation"}),
		OutboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_relayed_total",
			Help: "Outbox events published.",
		}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_failures_total",
			Help: "Outbox events that failed to publish.",
		}),
		OfflinePushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "offline_pushes_total",
			Help: "Offline push notifications issued.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OnlineUsers, m.LiveConnections, m.Pushes, m.MessagesStored, m.StoreErrors,
		m.OutboxRelayed, m.OutboxFailures, m.OfflinePushes, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.OnlineUsers.Set(float64(n))
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.LiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.LiveConnections.Dec()
	}
}

func (m *Metrics) PushDelivered() {
	if m != nil {
		m.Pushes.WithLabelValues("delivered").Inc()
	}
}

func (m *Metrics) PushDropped() {
	if m != nil {
		m.Pushes.WithLabelValues("dropped").Inc()
	}
}

func (m *Metrics) MessageStored() {
	if m != nil {
		m.MessagesStored.Inc()
	}
}

func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Relayed(n int) {
	if m != nil {
		m.OutboxRelayed.Add(float64(n))
	}
}

func (m *Metrics) RelayFailed() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

func (m *Metrics) OfflinePush() {
	if m != nil {
		m.OfflinePushes.Inc()
	}
}

func (m *Metrics) ObserveHTTP(method string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(seconds)
}
