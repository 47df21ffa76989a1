package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures wall time elapsed since its creation, for recording into
// a Prometheus histogram once the timed operation completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started. It may be
// called more than once; each call reflects the time up to that call.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) time.Duration {
	d := t.Duration()
	h.Observe(d.Seconds())
	return d
}

// ObserveDurationVec records the elapsed time into the vec's series for
// the given label values.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labelValues ...string) time.Duration {
	d := t.Duration()
	vec.WithLabelValues(labelValues...).Observe(d.Seconds())
	return d
}
