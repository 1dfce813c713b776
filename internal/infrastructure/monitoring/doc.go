/*
Package monitoring provides metrics collection for corsbridge.

# Overview

Prometheus collectors for the CORS rewrite layer and the downstream client:
probe attempts and latency, capability verdicts, rewrite decisions, restored
redirect statuses, downstream requests and circuit breaker transitions.
Metrics satisfies cors.Recorder.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	resolver, err := cors.NewResolver(cors.Options{
		PageOrigin: origin,
		Recorder:   metrics,
	})

# Metrics Endpoint

Expose the registry with promhttp:

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
*/
package monitoring
