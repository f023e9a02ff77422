package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus maps dotted metric names onto label values of three vectors.
type Prometheus struct {
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Orchestrator events.",
			},
			[]string{"event"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Orchestrator operation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Orchestrator state gauges.",
			},
			[]string{"name"},
		),
	}
	for _, c := range []prometheus.Collector{p.events, p.durations, p.gauges} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Increment(metric string) {
	p.events.WithLabelValues(label(metric)).Inc()
}

func (p *Prometheus) Duration(metric string, duration time.Duration) {
	p.durations.WithLabelValues(label(metric)).Observe(duration.Seconds())
}

func (p *Prometheus) Gauge(metric string, value int) {
	p.gauges.WithLabelValues(label(metric)).Set(float64(value))
}

func label(metric string) string {
	return strings.ReplaceAll(metric, ".", "_")
}
