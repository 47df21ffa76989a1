// Package health provides the HTTP, TCP, and exec probes that
// pkg/servicemonitor's CheckerMonitor polls to derive each service
// instance's up/down status, the signal phase C of the failer consults.
package health
