// Package metrics implements counters, gauges and histograms exposed in the
// Prometheus text format (text/plain; version=0.0.4).
//
// Metrics are created through a Registry and are safe for concurrent use:
//
//	r := metrics.NewRegistry()
//	dispatches := r.NewCounter("expectd_dispatches_total", "Dispatched requests", "outcome")
//	dispatches.MustWith("matched").Inc()
//	http.Handle("/metrics", r.Handler())
package metrics
