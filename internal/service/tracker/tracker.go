// Package tracker counts remote calls in flight and their outcomes.
package tracker

import "sync/atomic"

// Tracker is safe for concurrent use; the zero value is ready.
type Tracker struct {
	running   atomic.Int64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Running   int64  `json:"running"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Inc marks a call as started.
func (t *Tracker) Inc() { t.running.Add(1) }

// Done marks a call as finished with err as its outcome.
func (t *Tracker) Done(err error) {
	t.running.Add(-1)
	if err != nil {
		t.failed.Add(1)
		return
	}
	t.succeeded.Add(1)
}

// Running returns the current in-flight count.
func (t *Tracker) Running() int64 { return t.running.Load() }

func (t *Tracker) Stats() Stats {
	return Stats{
		Running:   t.running.Load(),
		Succeeded: t.succeeded.Load(),
		Failed:    t.failed.Load(),
	}
}
