package portal

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics count what the uploader does
type Metrics struct {
	Parts   prometheus.Counter
	Bytes   prometheus.Counter
	Outcome *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Parts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "parts_total",
			Help:      "Parts sent with addPart.",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Package bytes sent with addPart.",
		}),
		Outcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "items_total",
			Help:      "Uploaded items by final processing status.",
		}, []string{"status"}),
	}
}

// DefaultMetrics are used by new Portals
var DefaultMetrics = (*Metrics)(nil)

// Collectors returns all prometheus metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.Parts,
		m.Bytes,
		m.Outcome,
	}
}

func (m *Metrics) onPart(n int) {
	if m == nil {
		return
	}
	m.Parts.Inc()
	m.Bytes.Add(float64(n))
}

func (m *Metrics) onStatus(status string) {
	if m == nil {
		return
	}
	m.Outcome.WithLabelValues(status).Inc()
}
