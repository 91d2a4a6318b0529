// Package projector derives the groupings the presentation layer renders:
// workflow stage buckets and search-filtered lists. All functions are pure.
package projector

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iliamunaev/orderdesk/internal/model"
)

// Board is the stage partition of an order set.
// Cancelled orders are kept apart from the workflow columns.
type Board struct {
	Pending    []model.Order `json:"pending"`
	Preparing  []model.Order `json:"preparing"`
	Delivering []model.Order `json:"delivering"`
	Delivered  []model.Order `json:"delivered"`
	Cancelled  []model.Order `json:"cancelled"`
}

// Buckets filters orders by query and partitions the result by status.
func Buckets(orders []model.Order, query string) Board {
	b := Board{
		Pending:    []model.Order{},
		Preparing:  []model.Order{},
		Delivering: []model.Order{},
		Delivered:  []model.Order{},
		Cancelled:  []model.Order{},
	}
	m := newMatcher(query)
	for _, o := range orders {
		if !m.match(o) {
			continue
		}
		switch o.Status {
		case model.StatusPending:
			b.Pending = append(b.Pending, o)
		case model.StatusPreparing:
			b.Preparing = append(b.Preparing, o)
		case model.StatusDelivering:
			b.Delivering = append(b.Delivering, o)
		case model.StatusDelivered:
			b.Delivered = append(b.Delivered, o)
		case model.StatusCancelled:
			b.Cancelled = append(b.Cancelled, o)
		}
	}
	return b
}

// Filter returns the orders matching query, preserving order.
func Filter(orders []model.Order, query string) []model.Order {
	m := newMatcher(query)
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if m.match(o) {
			out = append(out, o)
		}
	}
	return out
}

// Match reports whether query is a substring of the order number, customer
// name or customer phone, ignoring case and accents. An empty query matches.
func Match(o model.Order, query string) bool {
	return newMatcher(query).match(o)
}

type matcher struct {
	fold   transform.Transformer
	needle string
}

func newMatcher(query string) *matcher {
	m := &matcher{
		fold: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC),
	}
	m.needle = m.key(strings.TrimSpace(query))
	return m
}

// key strips combining marks and folds case.
func (m *matcher) key(s string) string {
	out, _, err := transform.String(m.fold, s)
	if err != nil {
		return s
	}
	return out
}

func (m *matcher) match(o model.Order) bool {
	if m.needle == "" {
		return true
	}
	for _, field := range []string{o.OrderNumber, o.Customer.Name, o.Customer.Phone} {
		if field != "" && strings.Contains(m.key(field), m.needle) {
			return true
		}
	}
	return false
}
