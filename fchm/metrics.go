package fchm

import "github.com/prometheus/client_golang/prometheus"

// metricsRegisterer is the subset of prometheus.Registerer the series
// needs; defined locally so callers can pass a *prometheus.Registry, the
// default registerer, or a no-op fake in tests.
type metricsRegisterer interface {
	MustRegister(...prometheus.Collector)
}

// metrics mirrors the small gauge/counter struct pattern used throughout
// go-ethereum's metrics package: a handful of collectors, registered once
// at construction, updated inline from the hot path.
type metrics struct {
	liveVersions    prometheus.Gauge
	currentVersion  prometheus.Gauge
	gcPasses        prometheus.Counter
	mutationsPruned prometheus.Counter
	keysDropped     prometheus.Counter
}

func newMetrics(reg metricsRegisterer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		liveVersions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fchm", Name: "live_versions", Help: "Number of snapshot versions currently live.",
		}),
		currentVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fchm", Name: "current_version", Help: "The series' current mutable version number.",
		}),
		gcPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fchm", Name: "gc_passes_total", Help: "Number of GC pruning passes run over a non-empty worklist.",
		}),
		mutationsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fchm", Name: "mutations_pruned_total", Help: "Number of chain mutations unlinked by the GC.",
		}),
		keysDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fchm", Name: "keys_dropped_total", Help: "Number of keys removed from the core map by the GC.",
		}),
	}
	reg.MustRegister(m.liveVersions, m.currentVersion, m.gcPasses, m.mutationsPruned, m.keysDropped)
	return m
}
