// Package model defines the canonical order shape shared by the engine,
// its components and the HTTP API.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the workflow state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Action is a user-issued workflow command.
type Action string

const (
	ActionAccept           Action = "accept"
	ActionReject           Action = "reject"
	ActionDispatch         Action = "dispatch"
	ActionConfirmDelivered Action = "deliver"
)

// Order is the normalized order record.
type Order struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	Customer      Customer  `json:"customer"`
	Items         []Item    `json:"items"`
	Amounts       Amounts   `json:"amounts"`
	PaymentMethod string    `json:"payment_method"`
	Notes         string    `json:"notes,omitempty"`
}

// Customer holds the contact data of an order; any field may be empty.
type Customer struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	AddressReference string `json:"address_reference"`
}

// Item is one order line.
type Item struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageRef  *string         `json:"image_ref"`
}

// Amounts are the monetary totals. Total is authoritative and never re-derived.
type Amounts struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// Clone returns a deep copy so readers never share the store's slices.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]Item, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}
