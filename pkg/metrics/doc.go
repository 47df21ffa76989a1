// Package metrics defines the Prometheus instrumentation the node-failure
// core exports: node counts by state, throttle budget and trip counts,
// fail/park/dirty counters, cascade outcome counts and duration, circuit
// breaker state, maintainer tick skips, Raft leadership and applied
// index, and the api package's request counters and latency histogram.
// Handler exposes the registry for the /metrics route.
package metrics
