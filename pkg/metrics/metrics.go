package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenhq/beacon/internal/common/config"
)

// Metrics owns the prometheus registry and the gateway's instruments.
type Metrics struct {
	registry      *prometheus.Registry
	connections   *prometheus.GaugeVec
	deliveries    *prometheus.CounterVec
	deliveryFails prometheus.Counter
	evictions     *prometheus.CounterVec
	sweepDur      prometheus.Histogram
}

// New builds a registry with process/Go collectors and the gateway
// instruments registered.
func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	connections := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "connections_open"}, []string{"transport"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "deliveries_total"}, []string{"target"})
	deliveryFails := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "delivery_failures_total"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "evictions_total"}, []string{"reason"})
	sweepDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "sweep_duration_seconds", Buckets: buckets})
	r.MustRegister(connections, deliveries, deliveryFails, evictions, sweepDur)

	return &Metrics{
		registry:      r,
		connections:   connections,
		deliveries:    deliveries,
		deliveryFails: deliveryFails,
		evictions:     evictions,
		sweepDur:      sweepDur,
	}
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened(transport string) {
	m.connections.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnClosed(transport string) {
	m.connections.WithLabelValues(transport).Dec()
}

func (m *Metrics) Delivered(target string, n int) {
	m.deliveries.WithLabelValues(target).Add(float64(n))
}

func (m *Metrics) DeliveryFailed() {
	m.deliveryFails.Inc()
}

func (m *Metrics) Evicted(reason string) {
	m.evictions.WithLabelValues(reason).Inc()
}

func (m *Metrics) SweepDone(d time.Duration) {
	m.sweepDur.Observe(d.Seconds())
}
