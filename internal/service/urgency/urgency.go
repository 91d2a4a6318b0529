// Package urgency derives the age counter and severity tier of orders that
// are still waiting to be accepted.
package urgency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliamunaev/orderdesk/internal/model"
)

// MaxDisplaySeconds caps the rendered counter at 60:00.
const MaxDisplaySeconds = 3600

// TickInterval is the cadence of the shared urgency tick.
const TickInterval = time.Second

// Tier is the severity bucket of a pending order.
type Tier string

const (
	TierNormal   Tier = "normal"
	TierElevated Tier = "elevated"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Reading is the urgency of one pending order at one instant.
type Reading struct {
	OrderID        string `json:"order_id"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Display        string `json:"display"`
	Tier           Tier   `json:"tier"`
}

// Elapsed returns whole seconds since createdAt. It is zero for a zero
// createdAt and never negative.
func Elapsed(createdAt, now time.Time) int64 {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int64(now.Sub(createdAt) / time.Second)
}

// Format renders elapsed seconds as MM:SS, clamped to MaxDisplaySeconds.
func Format(elapsed int64) string {
	if elapsed > MaxDisplaySeconds {
		elapsed = MaxDisplaySeconds
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return fmt.Sprintf("%02d:%02d", elapsed/60, elapsed%60)
}

// TierFor classifies unclamped elapsed seconds.
func TierFor(elapsed int64) Tier {
	minutes := elapsed / 60
	switch {
	case minutes >= 45:
		return TierCritical
	case minutes >= 30:
		return TierHigh
	case minutes >= 15:
		return TierElevated
	default:
		return TierNormal
	}
}

// Read computes the reading of an order created at createdAt.
func Read(orderID string, createdAt, now time.Time) Reading {
	e := Elapsed(createdAt, now)
	return Reading{
		OrderID:        orderID,
		ElapsedSeconds: e,
		Display:        Format(e),
		Tier:           TierFor(e),
	}
}

// PendingSource lists the orders currently awaiting acceptance.
type PendingSource func() []model.Order

// Clock keeps readings for every pending order fresh from a single
// shared ticker.
type Clock struct {
	clock  clockwork.Clock
	source PendingSource

	mu       sync.RWMutex
	readings map[string]Reading
}

// NewClock returns a Clock reading pending orders from source.
// It panics if source is nil.
func NewClock(clock clockwork.Clock, source PendingSource) *Clock {
	if source == nil {
		panic("urgency.NewClock: nil source")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Clock{
		clock:    clock,
		source:   source,
		readings: make(map[string]Reading),
	}
}

// Run refreshes readings once per TickInterval until ctx is done.
// On return the ticker is stopped and all readings are released.
func (c *Clock) Run(ctx context.Context) error {
	t := c.clock.NewTicker(TickInterval)
	defer func() {
		t.Stop()
		c.mu.Lock()
		c.readings = make(map[string]Reading)
		c.mu.Unlock()
	}()

	c.Refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			c.Refresh()
		}
	}
}

// Refresh recomputes readings for the current pending set. Orders that are
// no longer pending, or no longer present, lose their reading.
func (c *Clock) Refresh() {
	now := c.clock.Now()
	next := make(map[string]Reading)
	for _, o := range c.source() {
		if o.Status != model.StatusPending {
			continue
		}
		next[o.ID] = Read(o.ID, o.CreatedAt, now)
	}

	c.mu.Lock()
	c.readings = next
	c.mu.Unlock()
}

// Reading returns the last computed reading for id.
func (c *Clock) Reading(id string) (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.readings[id]
	return r, ok
}

// Readings returns a copy of all current readings keyed by order id.
func (c *Clock) Readings() map[string]Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Reading, len(c.readings))
	for k, v := range c.readings {
		out[k] = v
	}
	return out
}
