// Package metrics wraps a prometheus.Registerer with the counters and
// histograms notus's core package reports through its MetricsSink
// interface, so core never imports prometheus directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry implements core.MetricsSink.
type Registry struct {
	puts           prometheus.Counter
	gets           prometheus.Counter
	getMisses      prometheus.Counter
	deletes        prometheus.Counter
	corruptReads   prometheus.Counter
	mergeDuration  prometheus.Histogram
	mergeReclaimed prometheus.Counter
	diskBytes      prometheus.Gauge
}

// New builds a Registry and registers its collectors with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "puts_total",
			Help:      "Total number of Put calls.",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "gets_total",
			Help:      "Total number of Get calls, hits and misses alike.",
		}),
		getMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "get_misses_total",
			Help:      "Total number of Get calls that found no live entry for the key.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "deletes_total",
			Help:      "Total number of Delete calls.",
		}),
		corruptReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "corrupt_reads_total",
			Help:      "Total number of reads that failed their CRC check.",
		}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notus",
			Name:      "merge_duration_seconds",
			Help:      "Wall-clock duration of Merge calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		mergeReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notus",
			Name:      "merge_bytes_reclaimed_total",
			Help:      "Total bytes of dead records dropped by Merge.",
		}),
		diskBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notus",
			Name:      "disk_bytes",
			Help:      "Combined size of every segment's data and hint files on disk.",
		}),
	}

	reg.MustRegister(r.puts, r.gets, r.getMisses, r.deletes, r.corruptReads,
		r.mergeDuration, r.mergeReclaimed, r.diskBytes)
	return r
}

func (r *Registry) ObservePut() { r.puts.Inc() }

func (r *Registry) ObserveGet(hit bool) {
	r.gets.Inc()
	if !hit {
		r.getMisses.Inc()
	}
}

func (r *Registry) ObserveDelete() { r.deletes.Inc() }

func (r *Registry) ObserveCorruptRead() { r.corruptReads.Inc() }

func (r *Registry) ObserveMerge(d time.Duration, bytesReclaimed int64) {
	r.mergeDuration.Observe(d.Seconds())
	r.mergeReclaimed.Add(float64(bytesReclaimed))
}

func (r *Registry) ObserveDiskBytes(bytes int64) { r.diskBytes.Set(float64(bytes)) }
