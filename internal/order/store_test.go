package order

import (
	"testing"

	"github.com/iliamunaev/orderdesk/internal/model"
)

func orders(statuses ...string) []model.Order {
	out := make([]model.Order, 0, len(statuses))
	for i, st := range statuses {
		out = append(out, model.Order{ID: string(rune('a' + i)), Status: model.Status(st)})
	}
	return out
}

func TestStoreReplace_DropsDuplicateIDs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace([]model.Order{{ID: "a", OrderNumber: "1"}, {ID: "a", OrderNumber: "2"}}, 0)

	if got := s.Len(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if o, _ := s.Get("a"); o.OrderNumber != "1" {
		t.Fatalf("expected first duplicate kept, got %q", o.OrderNumber)
	}
}

func TestStoreReplace_ConfirmedStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		since func(before, after uint64) uint64
		want  model.Status
	}{
		{name: "fetch issued before confirmation", since: func(before, _ uint64) uint64 { return before }, want: model.StatusPreparing},
		{name: "fetch issued after confirmation", since: func(_, after uint64) uint64 { return after }, want: model.StatusPending},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewStore()
			s.Replace(orders("pending"), 0)
			before := s.Version()
			if !s.SetStatus("a", model.StatusPreparing) {
				t.Fatal("expected order a in store")
			}
			after := s.Version()

			s.Replace(orders("pending"), tt.since(before, after))
			if o, _ := s.Get("a"); o.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, o.Status)
			}
		})
	}
}

func TestStoreReplace_ForgetsConfirmationOnceSeen(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace(orders("pending"), 0)
	before := s.Version()
	s.SetStatus("a", model.StatusPreparing)

	if kept := s.Replace(orders("pending"), before); len(kept) != 1 || kept[0] != "a" {
		t.Fatalf("expected a kept, got %v", kept)
	}

	// a newer fetch reports a change made elsewhere
	s.Replace(orders("cancelled"), s.Version())
	if o, _ := s.Get("a"); o.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", o.Status)
	}
	if kept := s.Replace(orders("delivering"), before); len(kept) != 0 {
		t.Fatalf("expected nothing kept after the confirmation was seen, got %v", kept)
	}
}
