package delta

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/orderdesk/internal/model"
)

func orders(ids ...string) []model.Order {
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Order{ID: id, OrderNumber: "#" + id, Status: model.StatusPending})
	}
	return out
}

func eventIDs(events []model.NewOrderEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.OrderID)
	}
	return out
}

func TestObserve_FirstLoadIsSilent(t *testing.T) {
	t.Parallel()

	d := New("biz-1", nil)
	events := d.Observe(orders("a", "b", "c"))

	assert.Empty(t, events)
	assert.True(t, d.Primed())
	assert.Equal(t, []string{"a", "b", "c"}, d.Baseline())
}

func TestObserve_EmptyFirstLoadStillPrimes(t *testing.T) {
	t.Parallel()

	d := New("biz-1", nil)
	assert.Empty(t, d.Observe(nil))
	assert.Equal(t, []string{"x"}, eventIDs(d.Observe(orders("x"))))
}

func TestObserve_ExactlyNewIDs(t *testing.T) {
	t.Parallel()

	d := New("biz-1", nil)
	d.Observe(orders("a", "b"))

	events := d.Observe(orders("b", "c", "a", "d", "c"))
	assert.Equal(t, []string{"c", "d"}, eventIDs(events))

	assert.Empty(t, d.Observe(orders("a", "b", "c", "d")))
}

func TestObserve_EventPayload(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	d := New("biz-9", func() time.Time { return at })
	d.Observe(nil)

	o := model.Order{
		ID:          "n-1",
		OrderNumber: "1042",
		Customer:    model.Customer{Name: "Juan Pérez"},
		Amounts:     model.Amounts{Total: decimal.RequireFromString("18.75")},
	}
	events := d.Observe([]model.Order{o})
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "biz-9", e.BusinessID)
	assert.Equal(t, "1042", e.OrderNumber)
	assert.Equal(t, "Juan Pérez", e.CustomerName)
	assert.True(t, o.Amounts.Total.Equal(e.Total))
	assert.Equal(t, at, e.DetectedAt)
	assert.Equal(t, "OrderArrived", e.Type())
}

// Snapshot sequence with a removal and a reappearance.
func TestObserve_Scenario(t *testing.T) {
	t.Parallel()

	d := New("biz-1", nil)

	assert.Empty(t, d.Observe(orders("A")))
	assert.Equal(t, []string{"A"}, d.Baseline())

	assert.Equal(t, []string{"B"}, eventIDs(d.Observe(orders("A", "B"))))

	assert.Empty(t, d.Observe(orders("B")))
	assert.Equal(t, []string{"B"}, d.Baseline())

	assert.Equal(t, []string{"A"}, eventIDs(d.Observe(orders("A", "B"))))
}

func TestNew_StartsUnprimed(t *testing.T) {
	t.Parallel()

	d := New("biz-1", nil)
	assert.False(t, d.Primed())
	assert.Empty(t, d.Baseline())
	assert.Empty(t, d.Observe(orders("a", "b", "c")))
}
