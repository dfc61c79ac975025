package receiver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors shared by every channel.
type Metrics struct {
	Registry *prometheus.Registry

	events       *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	state        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "framer_events_total",
			Help:      "Framer events by channel and state.",
		}, []string{"channel", "state"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "alerts_total",
			Help:      "Decoded messages delivered to outputs.",
		}, []string{"channel", "kind", "event"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "decode_errors_total",
			Help:      "Message cycles that could not be decoded.",
		}, []string{"channel"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "duplicate_alerts_total",
			Help:      "Decoded messages suppressed as duplicates.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "dropped_alerts_total",
			Help:      "Alerts skipped because an output was not keeping up.",
		}, []string{"channel"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samedec",
			Name:      "bytes_total",
			Help:      "Demodulated bytes received.",
		}, []string{"channel"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "samedec",
			Name:      "framer_reading",
			Help:      "1 while the channel's framer is reading a burst.",
		}, []string{"channel"}),
	}

	m.Registry.MustRegister(
		m.events,
		m.alerts,
		m.decodeErrors,
		m.duplicates,
		m.dropped,
		m.bytes,
		m.state,
		collectors.NewGoCollector(),
	)
	return m
}
