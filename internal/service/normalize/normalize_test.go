package normalize

import (
	"encoding/json"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/orderdesk/internal/model"
)

func TestOrder_CustomerPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want model.Customer
	}{
		{
			name: "joined_record_wins",
			raw: `{"id":"o-1",
				"customers":{"name":"Juan Pérez","phone":"555-1"},
				"customer":{"name":"Other","phone":"555-2","address":"Calle 1"},
				"customer_name":"Flat","delivery_address":"Flat 9","address_reference":"blue door"}`,
			want: model.Customer{Name: "Juan Pérez", Phone: "555-1", Address: "Calle 1", AddressReference: "blue door"},
		},
		{
			name: "denormalized_before_flat",
			raw:  `{"id":"o-2","customer":{"full_name":"Ana"},"customer_name":"Flat","customer_phone":"777"}`,
			want: model.Customer{Name: "Ana", Phone: "777"},
		},
		{
			name: "flat_only",
			raw:  `{"id":"o-3","customer_name":"Luis","customer_phone":"123","delivery_address":"Av 2"}`,
			want: model.Customer{Name: "Luis", Phone: "123", Address: "Av 2"},
		},
		{
			name: "empty_joined_falls_through",
			raw:  `{"id":"o-4","customers":{"name":""},"customer_name":"Eva"}`,
			want: model.Customer{Name: "Eva"},
		},
		{
			name: "joined_as_array",
			raw:  `{"id":"o-5","customers":[{"name":"Arr"}]}`,
			want: model.Customer{Name: "Arr"},
		},
		{
			name: "nothing",
			raw:  `{"id":"o-6"}`,
			want: model.Customer{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Order(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, got.Customer)
		})
	}
}

func TestOrder_Items(t *testing.T) {
	t.Parallel()

	raw := `{"id":"o-1","order_items":[
		{"products":{"name":"Pizza","image_url":"p.png","price":"12.50"},"product":{"name":"Other"},"quantity":2},
		{"product":{"name":"Soda","image_url":"s.png"},"unit_price":3},
		{"product_name":"Fries","price":"4.25","image_url":"f.png","quantity":"3"},
		{"quantity":-1},
		"garbage"
	]}`

	o := Order(json.RawMessage(raw))
	require.Len(t, o.Items, 4)

	assert.Equal(t, "Pizza", o.Items[0].Name)
	require.NotNil(t, o.Items[0].ImageRef)
	assert.Equal(t, "p.png", *o.Items[0].ImageRef)
	assert.True(t, decimal.RequireFromString("12.5").Equal(o.Items[0].UnitPrice))
	assert.Equal(t, 2, o.Items[0].Quantity)

	assert.Equal(t, "Soda", o.Items[1].Name)
	assert.Equal(t, "s.png", *o.Items[1].ImageRef)
	assert.True(t, decimal.NewFromInt(3).Equal(o.Items[1].UnitPrice))
	assert.Equal(t, 1, o.Items[1].Quantity)

	assert.Equal(t, "Fries", o.Items[2].Name)
	assert.Equal(t, "f.png", *o.Items[2].ImageRef)
	assert.Equal(t, 3, o.Items[2].Quantity)

	assert.Equal(t, DefaultItemName, o.Items[3].Name)
	assert.Nil(t, o.Items[3].ImageRef)
	assert.Equal(t, 1, o.Items[3].Quantity)
}

func TestOrder_ScalarFields(t *testing.T) {
	t.Parallel()

	raw := `{"id":"3f2a9c1e-0000-4bbb-9ccc-7d1e5a9b42f0","status":"Canceled",
		"created_at":"2024-05-01T10:00:00.123Z","subtotal":"20.00","delivery_fee":2.5,
		"discount":-1,"total":"21.5","payment_method":"CASH","notes":"no onions"}`

	o := Order(json.RawMessage(raw))

	assert.Equal(t, "5A9B42F0", o.OrderNumber)
	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC), o.CreatedAt)
	assert.True(t, decimal.NewFromInt(20).Equal(o.Amounts.Subtotal))
	assert.True(t, decimal.RequireFromString("2.5").Equal(o.Amounts.DeliveryFee))
	assert.True(t, o.Amounts.Discount.IsZero())
	assert.True(t, decimal.RequireFromString("21.5").Equal(o.Amounts.Total))
	assert.Equal(t, "cash", o.PaymentMethod)
	assert.Equal(t, "no onions", o.Notes)
}

func TestOrder_ExplicitNumberWins(t *testing.T) {
	t.Parallel()

	o := Order(json.RawMessage(`{"id":"abc","order_number":"1042"}`))
	assert.Equal(t, "1042", o.OrderNumber)

	o = Order(json.RawMessage(`{"id":"abc"}`))
	assert.Equal(t, "ABC", o.OrderNumber)
}

func TestOrder_LargeNumericIDs(t *testing.T) {
	t.Parallel()

	a := Order(json.RawMessage(`{"id":9007199254740993,"total":12.50}`))
	b := Order(json.RawMessage(`{"id":9007199254740992}`))

	assert.Equal(t, "9007199254740993", a.ID)
	assert.Equal(t, "9007199254740992", b.ID)
	assert.Equal(t, "54740993", a.OrderNumber)
	assert.True(t, decimal.RequireFromString("12.5").Equal(a.Amounts.Total))
}

func TestOrder_MultibyteIDSuffix(t *testing.T) {
	t.Parallel()

	o := Order(json.RawMessage(`{"id":"pedido-ñandú-añejo"}`))

	assert.True(t, utf8.ValidString(o.OrderNumber))
	assert.Equal(t, "DÚ-AÑEJO", o.OrderNumber)
}

func TestOrder_MalformedNeverPanics(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{``, `null`, `[]`, `"x"`, `{"id":`, `{"items":{"a":1},"customers":7,"created_at":"yesterday"}`} {
		raw := raw
		assert.NotPanics(t, func() { _ = Order(json.RawMessage(raw)) }, raw)
	}

	o := Order(json.RawMessage(`{"id":"x","created_at":"yesterday","items":{"a":1}}`))
	assert.True(t, o.CreatedAt.IsZero())
	assert.Empty(t, o.Items)
}

func TestStatusAliases(t *testing.T) {
	t.Parallel()

	tests := map[string]model.Status{
		"pending":     model.StatusPending,
		"PREPARING":   model.StatusPreparing,
		"accepted":    model.StatusPreparing,
		"on_the_way":  model.StatusDelivering,
		"completed":   model.StatusDelivered,
		"rejected":    model.StatusCancelled,
		" cancelled ": model.StatusCancelled,
		"":            model.StatusPending,
		"mystery":     model.StatusPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, Status(in), in)
	}
}

func TestOrders_DropsRowsWithoutID(t *testing.T) {
	t.Parallel()

	raws := []json.RawMessage{
		json.RawMessage(`{"id":"a"}`),
		json.RawMessage(`{"status":"pending"}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"id":"b"}`),
	}

	got := Orders(raws)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
