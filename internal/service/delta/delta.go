// Package delta tells newly arrived orders apart from orders that were
// already known when the previous snapshot was applied.
package delta

import (
	"sort"
	"time"

	"github.com/iliamunaev/orderdesk/internal/model"
)

// Detector keeps the baseline of order ids seen in the last snapshot.
// It is not safe for concurrent use; the engine serializes calls.
type Detector struct {
	businessID string
	now        func() time.Time

	primed   bool
	baseline map[string]struct{}
}

// New returns a Detector for businessID. now stamps emitted events and
// defaults to time.Now.
func New(businessID string, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		businessID: businessID,
		now:        now,
		baseline:   make(map[string]struct{}),
	}
}

// Observe compares a snapshot with the baseline and returns one event per
// order id that was not in it, in snapshot order. The first snapshot after
// New or Reset only primes the baseline. The baseline is always replaced by
// the ids of snapshot, so an id that disappears and returns counts as new.
func (d *Detector) Observe(snapshot []model.Order) []model.NewOrderEvent {
	current := make(map[string]struct{}, len(snapshot))
	var events []model.NewOrderEvent

	at := d.now()
	for _, o := range snapshot {
		if _, dup := current[o.ID]; dup {
			continue
		}
		current[o.ID] = struct{}{}

		if !d.primed {
			continue
		}
		if _, known := d.baseline[o.ID]; known {
			continue
		}
		events = append(events, model.NewOrderEvent{
			BusinessID:   d.businessID,
			OrderID:      o.ID,
			OrderNumber:  o.OrderNumber,
			CustomerName: o.Customer.Name,
			Total:        o.Amounts.Total,
			DetectedAt:   at,
		})
	}

	d.baseline = current
	d.primed = true
	return events
}

// Primed reports whether a first snapshot has been observed.
func (d *Detector) Primed() bool { return d.primed }

// Baseline returns the known ids in sorted order.
func (d *Detector) Baseline() []string {
	out := make([]string, 0, len(d.baseline))
	for id := range d.baseline {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
