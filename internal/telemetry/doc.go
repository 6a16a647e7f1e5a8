// Package telemetry maintains the pipeline's monotonic counters and the
// ingress-to-decision latency histogram.
//
// The data path increments counters without allocation; snapshots taken
// from other goroutines use atomic loads. A Prometheus collector exposes
// the same numbers on the configured metrics endpoint.
package telemetry
