package fshttp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provide Transport HTTP level metrics.
type Metrics struct {
	StatusCode *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates a new metrics instance, the instance shall be assigned to
// DefaultMetrics before any processing takes place.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		StatusCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "status_code",
			Help:      "HTTP responses by host, method and status code, 0 for no response.",
		}, []string{"host", "method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Round trip time of portal requests.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"host", "method"}),
	}
}

// DefaultMetrics specifies metrics used for new Transports.
var DefaultMetrics = (*Metrics)(nil)

// Collectors returns all prometheus metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.StatusCode,
		m.Duration,
	}
}

func (m *Metrics) onResponse(req *http.Request, resp *http.Response, elapsed time.Duration) {
	if m == nil {
		return
	}

	var statusCode = 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	m.StatusCode.WithLabelValues(req.URL.Host, req.Method, fmt.Sprint(statusCode)).Inc()
	m.Duration.WithLabelValues(req.URL.Host, req.Method).Observe(elapsed.Seconds())
}
