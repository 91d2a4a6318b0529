// Package alert fans new-order events out to live subscribers and keeps a
// short-lived list of active alerts for polling clients.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/iliamunaev/orderdesk/internal/model"
)

const (
	DefaultTTL     = 10 * time.Second
	DefaultBuffer  = 16
	forwardTimeout = 5 * time.Second
)

// Sink forwards events outside the process.
type Sink interface {
	Publish(ctx context.Context, ev model.NewOrderEvent) error
}

// Alert is an event that is still shown to staff.
type Alert struct {
	Event     model.NewOrderEvent `json:"event"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Feed is safe for concurrent use.
type Feed struct {
	clock clockwork.Clock
	ttl   time.Duration
	sinks []Sink
	log   *logrus.Entry

	mu     sync.Mutex
	subs   map[uint64]chan model.NewOrderEvent
	nextID uint64
	active []Alert
	closed bool

	wg sync.WaitGroup
}

// NewFeed returns a Feed whose alerts dismiss themselves after ttl.
func NewFeed(clock clockwork.Clock, ttl time.Duration, log *logrus.Entry, sinks ...Sink) *Feed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Feed{
		clock: clock,
		ttl:   ttl,
		sinks: sinks,
		log:   log.WithField("component", "alert"),
		subs:  make(map[uint64]chan model.NewOrderEvent),
	}
}

// Publish delivers events to every subscriber and records them as active.
// A subscriber whose buffer is full misses the event; Publish never blocks.
func (f *Feed) Publish(events ...model.NewOrderEvent) {
	if len(events) == 0 {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	expires := f.clock.Now().Add(f.ttl)
	for _, ev := range events {
		f.active = append(f.active, Alert{Event: ev, ExpiresAt: expires})
		for id, ch := range f.subs {
			select {
			case ch <- ev:
			default:
				f.log.WithFields(logrus.Fields{"subscriber": id, "order_id": ev.OrderID}).Warn("subscriber lagging, event dropped")
			}
		}
	}
	if len(f.sinks) > 0 {
		f.wg.Add(1)
		go f.forward(events)
	}
	f.mu.Unlock()

	for _, ev := range events {
		f.log.WithFields(logrus.Fields{
			"business_id":  ev.BusinessID,
			"order_id":     ev.OrderID,
			"order_number": ev.OrderNumber,
		}).Info("new order")
	}
}

func (f *Feed) forward(events []model.NewOrderEvent) {
	defer f.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	for _, ev := range events {
		for _, s := range f.sinks {
			if err := s.Publish(ctx, ev); err != nil {
				f.log.WithError(err).WithField("order_id", ev.OrderID).Warn("forward event")
			}
		}
	}
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. buffer <= 0 uses DefaultBuffer.
func (f *Feed) Subscribe(buffer int) (<-chan model.NewOrderEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan model.NewOrderEvent, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Active returns the alerts that have not expired, oldest first.
func (f *Feed) Active() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	kept := f.active[:0]
	for _, a := range f.active {
		if now.Before(a.ExpiresAt) {
			kept = append(kept, a)
		}
	}
	f.active = kept

	out := make([]Alert, len(kept))
	copy(out, kept)
	return out
}

// Dismiss removes the active alert for orderID, if any.
func (f *Feed) Dismiss(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.active {
		if a.Event.OrderID == orderID {
			f.active = append(f.active[:i], f.active[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every active alert. Subscribers stay attached.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.active = nil
	f.mu.Unlock()
}

// Close detaches all subscribers and waits for pending sink forwards.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	f.active = nil
	f.mu.Unlock()

	f.wg.Wait()
}
