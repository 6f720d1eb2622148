package core

import "time"

// MetricsSink receives datastore operation events. It exists so this
// package never imports a metrics library directly; the metrics
// package implements it over prometheus and wires it in through
// WithMetrics (SPEC_FULL.md §4.14).
type MetricsSink interface {
	ObservePut()
	ObserveGet(hit bool)
	ObserveDelete()
	ObserveCorruptRead()
	ObserveMerge(d time.Duration, bytesReclaimed int64)
	ObserveDiskBytes(bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObservePut()                               {}
func (noopMetrics) ObserveGet(hit bool)                       {}
func (noopMetrics) ObserveDelete()                             {}
func (noopMetrics) ObserveCorruptRead()                        {}
func (noopMetrics) ObserveMerge(d time.Duration, bytes int64) {}
func (noopMetrics) ObserveDiskBytes(bytes int64)               {}
