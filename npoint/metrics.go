package npoint

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for endpoints
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewMetrics registers the endpoint collectors with reg.  A nil reg
// means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Requests handled, by endpoint, method, and status.",
			},
			[]string{"endpoint", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Time from request arrival until the response is written.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Requests currently being handled.",
			},
			[]string{"endpoint"},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewMetrics is NewMetrics that panics
func MustNewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m, err := NewMetrics(reg, namespace)
	if err != nil {
		panic(err.Error())
	}
	return m
}

func (m *Metrics) begin(endpoint string) func(method string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	g := m.inFlight.WithLabelValues(endpoint)
	g.Inc()
	return func(method string, status int) {
		g.Dec()
		m.requests.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
	}
}
