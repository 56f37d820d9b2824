package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fshttp"
)

// metricsNamespace prefixes every metric name
const metricsNamespace = "sharepkg"

var (
	metricsFile = ""
	registry    *prometheus.Registry
)

// startMetrics makes the HTTP and upload metrics and registers them
// so new transports and portals count into them.
func startMetrics() error {
	registry = prometheus.NewRegistry()
	httpMetrics := fshttp.NewMetrics(metricsNamespace)
	uploadMetrics := portal.NewMetrics(metricsNamespace)
	for _, c := range append(httpMetrics.Collectors(), uploadMetrics.Collectors()...) {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	fshttp.DefaultMetrics = httpMetrics
	portal.DefaultMetrics = uploadMetrics
	return nil
}

// writeMetrics writes the metrics in the text exposition format to
// the --metrics-file if set.
func writeMetrics() {
	if metricsFile == "" || registry == nil {
		return
	}
	if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
		fs.Errorf(nil, "Failed to write metrics: %v", err)
		return
	}
	fs.Debugf(nil, "Wrote metrics to %q", metricsFile)
}
