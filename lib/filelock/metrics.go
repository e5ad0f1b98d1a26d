package filelock

import (
	"github.com/VictoriaMetrics/metrics"
	"io"
)

// registryMetrics holds the counters of one registry.
// Every registry has its own metrics.Set so independent registries (and tests) don't mix.
type registryMetrics struct {
	set *metrics.Set

	osLockAcquired  *metrics.Counter
	osLockReleased  *metrics.Counter
	osLockContended *metrics.Counter
	tokenAcquired   *metrics.Counter
	tokenContended  *metrics.Counter
}

func newRegistryMetrics(r *Registry) *registryMetrics {
	set := metrics.NewSet()
	m := &registryMetrics{
		set:             set,
		osLockAcquired:  set.NewCounter("tlock_os_lock_acquired_total"),
		osLockReleased:  set.NewCounter("tlock_os_lock_released_total"),
		osLockContended: set.NewCounter("tlock_os_lock_contended_total"),
		tokenAcquired:   set.NewCounter("tlock_token_acquired_total"),
		tokenContended:  set.NewCounter("tlock_token_contended_total"),
	}
	set.NewGauge("tlock_records", func() float64 {
		return float64(r.Len())
	})
	return m
}

// WriteMetrics writes the registry metrics in Prometheus text format to w.
func (r *Registry) WriteMetrics(w io.Writer) {
	r.metrics.set.WritePrometheus(w)
}
