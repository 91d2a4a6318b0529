package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewOrderEvent announces an order that was not part of the previous snapshot.
type NewOrderEvent struct {
	BusinessID   string          `json:"business_id"`
	OrderID      string          `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	DetectedAt   time.Time       `json:"detected_at"`
}

func (e NewOrderEvent) Type() string { return "OrderArrived" }
