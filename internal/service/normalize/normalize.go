// Package normalize maps the heterogeneous order payloads returned by the
// remote order source onto model.Order.
//
// Upstream rows come from several query shapes: a joined customer record,
// a denormalized customer object, or flat columns on the order itself.
// Every shape decision lives here so no other package branches on payload
// layout. The functions are total: missing or malformed fields degrade to
// empty values, never to errors.
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliamunaev/orderdesk/internal/model"
)

// DefaultItemName is used when no source carries a product name.
const DefaultItemName = "Item"

const orderNumberSuffix = 8

var statusAliases = map[string]model.Status{
	"pending":     model.StatusPending,
	"new":         model.StatusPending,
	"preparing":   model.StatusPreparing,
	"accepted":    model.StatusPreparing,
	"confirmed":   model.StatusPreparing,
	"delivering":  model.StatusDelivering,
	"on_the_way":  model.StatusDelivering,
	"in_delivery": model.StatusDelivering,
	"delivered":   model.StatusDelivered,
	"completed":   model.StatusDelivered,
	"cancelled":   model.StatusCancelled,
	"canceled":    model.StatusCancelled,
	"rejected":    model.StatusCancelled,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

type object map[string]any

// Orders normalizes a snapshot, dropping rows that carry no id.
func Orders(raws []json.RawMessage) []model.Order {
	out := make([]model.Order, 0, len(raws))
	for _, raw := range raws {
		o := Order(raw)
		if o.ID == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Order normalizes one raw payload. A payload that is not a JSON object
// yields a zero Order. Numbers are kept as written so large numeric ids
// survive intact.
func Order(raw json.RawMessage) model.Order {
	var row object
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil || row == nil {
		return model.Order{}
	}

	id := row.str("id")
	o := model.Order{
		ID:            id,
		OrderNumber:   firstNonEmpty(row.str("order_number"), row.str("number"), suffix(id)),
		Status:        Status(row.str("status")),
		CreatedAt:     parseTime(row.str("created_at")),
		Customer:      customer(row),
		Items:         items(row),
		PaymentMethod: strings.ToLower(row.str("payment_method")),
		Notes:         firstNonEmpty(row.str("notes"), row.str("note")),
	}
	o.Amounts = model.Amounts{
		Subtotal:    row.money("subtotal"),
		DeliveryFee: row.money("delivery_fee"),
		Discount:    row.money("discount"),
		Total:       row.money("total"),
	}
	return o
}

// Status maps an upstream status string, including known aliases, onto the
// workflow states. Unknown values are treated as pending.
func Status(s string) model.Status {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return model.StatusPending
}

func customer(row object) model.Customer {
	joined := row.obj("customers")
	denorm := row.obj("customer")

	return model.Customer{
		Name: firstNonEmpty(
			joined.str("name"), joined.str("full_name"),
			denorm.str("name"), denorm.str("full_name"),
			row.str("customer_name"),
		),
		Phone: firstNonEmpty(
			joined.str("phone"),
			denorm.str("phone"),
			row.str("customer_phone"),
		),
		Address: firstNonEmpty(
			joined.str("address"),
			denorm.str("address"),
			row.str("delivery_address"),
		),
		AddressReference: firstNonEmpty(
			joined.str("address_reference"), joined.str("reference"),
			denorm.str("address_reference"), denorm.str("reference"),
			row.str("address_reference"),
		),
	}
}

func items(row object) []model.Item {
	list := row.list("items")
	if len(list) == 0 {
		list = row.list("order_items")
	}

	out := make([]model.Item, 0, len(list))
	for _, v := range list {
		it, ok := v.(map[string]any)
		if !ok {
			continue
		}
		line := object(it)
		joined := line.obj("products")
		denorm := line.obj("product")

		price := line.money("unit_price")
		if price.IsZero() {
			price = line.money("price")
		}
		if price.IsZero() {
			price = firstMoney(joined.money("price"), denorm.money("price"))
		}

		qty := int(line.money("quantity").IntPart())
		if qty <= 0 {
			qty = 1
		}

		out = append(out, model.Item{
			Name: firstNonEmpty(
				joined.str("name"),
				denorm.str("name"),
				line.str("product_name"), line.str("name"),
				DefaultItemName,
			),
			UnitPrice: price,
			Quantity:  qty,
			ImageRef: optional(firstNonEmpty(
				joined.str("image_url"),
				denorm.str("image_url"),
				line.str("image_url"),
			)),
		})
	}
	return out
}

func (o object) str(key string) string {
	if o == nil {
		return ""
	}
	switch v := o[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (o object) obj(key string) object {
	if o == nil {
		return nil
	}
	switch v := o[key].(type) {
	case map[string]any:
		return v
	case []any:
		// one-to-one joins sometimes come back as single-element arrays
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func (o object) list(key string) []any {
	if o == nil {
		return nil
	}
	v, _ := o[key].([]any)
	return v
}

// money reads a number or numeric string; negatives and garbage become zero.
func (o object) money(key string) decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	var s string
	switch v := o[key].(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// suffix is the last orderNumberSuffix runes of id, upper-cased.
func suffix(id string) string {
	if r := []rune(id); len(r) > orderNumberSuffix {
		id = string(r[len(r)-orderNumberSuffix:])
	}
	return strings.ToUpper(id)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstMoney(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if !v.IsZero() {
			return v
		}
	}
	return decimal.Zero
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
