package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePutIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObservePut()
	r.ObservePut()

	if got := testutil.ToFloat64(r.puts); got != 2 {
		t.Fatalf("puts_total = %v, want 2", got)
	}
}

func TestObserveGetCountsTotalsAndMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveGet(true)
	r.ObserveGet(false)
	r.ObserveGet(true)

	if got := testutil.ToFloat64(r.gets); got != 3 {
		t.Fatalf("gets_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.getMisses); got != 1 {
		t.Fatalf("get_misses_total = %v, want 1", got)
	}
}

func TestObserveMergeRecordsDurationAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveMerge(5*time.Millisecond, 1024)

	if got := testutil.ToFloat64(r.mergeReclaimed); got != 1024 {
		t.Fatalf("merge_bytes_reclaimed_total = %v, want 1024", got)
	}
}

func TestObserveDiskBytesSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveDiskBytes(4096)
	if got := testutil.ToFloat64(r.diskBytes); got != 4096 {
		t.Fatalf("disk_bytes = %v, want 4096", got)
	}

	r.ObserveDiskBytes(2048)
	if got := testutil.ToFloat64(r.diskBytes); got != 2048 {
		t.Fatalf("disk_bytes after shrink = %v, want 2048 (gauge, not counter)", got)
	}
}
