package core

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// defaultFlushInterval is how often the background flusher drains the
// write buffer when the caller does not override it via
// WithFlushInterval.
const defaultFlushInterval = 10 * time.Millisecond

// flusher runs flush() on a fixed interval in its own goroutine until
// shutdown. It never returns an error to its caller: a failed
// background flush is logged and retried on the next tick, since the
// entries it failed to drain simply remain in the buffer (spec.md §4.9).
type flusher struct {
	interval time.Duration
	stop     atomic.Bool
	done     chan struct{}
}

func startFlusher(ds *DB, interval time.Duration, log *zap.Logger) *flusher {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	f := &flusher{interval: interval, done: make(chan struct{})}
	go f.run(ds, log)
	return f
}

func (f *flusher) run(ds *DB, log *zap.Logger) {
	defer close(f.done)
	for {
		if f.stop.Load() {
			return
		}
		if err := ds.flush(); err != nil {
			log.Warn("background flush failed", zap.Error(err))
		}
		// Sleep in short steps so shutdown is seen promptly even when
		// the interval is long.
		for waited := time.Duration(0); waited < f.interval && !f.stop.Load(); {
			step := min(f.interval-waited, defaultFlushInterval)
			time.Sleep(step)
			waited += step
		}
	}
}

// shutdown sets the stop flag and blocks until the loop goroutine has
// observed it and exited.
func (f *flusher) shutdown() {
	f.stop.Store(true)
	<-f.done
}
