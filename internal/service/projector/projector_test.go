package projector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/orderdesk/internal/model"
)

var allStatuses = []model.Status{
	model.StatusPending,
	model.StatusPreparing,
	model.StatusDelivering,
	model.StatusDelivered,
	model.StatusCancelled,
}

func fixture(n int) []model.Order {
	out := make([]model.Order, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Order{
			ID:          fmt.Sprintf("id-%d", i),
			OrderNumber: fmt.Sprintf("%04d", i),
			Status:      allStatuses[i%len(allStatuses)],
		})
	}
	return out
}

func columns(b Board) map[model.Status][]model.Order {
	return map[model.Status][]model.Order{
		model.StatusPending:    b.Pending,
		model.StatusPreparing:  b.Preparing,
		model.StatusDelivering: b.Delivering,
		model.StatusDelivered:  b.Delivered,
		model.StatusCancelled:  b.Cancelled,
	}
}

func TestBuckets_Partition(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 5, 23} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			in := fixture(n)
			b := Buckets(in, "")

			seen := make(map[string]int)
			for st, bucket := range columns(b) {
				for _, o := range bucket {
					assert.Equal(t, st, o.Status)
					seen[o.ID]++
				}
			}

			require.Len(t, seen, n)
			for id, count := range seen {
				assert.Equal(t, 1, count, "order %s in more than one bucket", id)
			}
		})
	}
}

func TestBuckets_CancelledNotInStages(t *testing.T) {
	t.Parallel()

	in := []model.Order{{ID: "x", Status: model.StatusCancelled}}
	b := Buckets(in, "")

	for st, bucket := range columns(b) {
		if st != model.StatusCancelled {
			assert.Empty(t, bucket, "stage %s", st)
		}
	}
	assert.Len(t, b.Cancelled, 1)
}

func TestBuckets_AppliesQuery(t *testing.T) {
	t.Parallel()

	in := []model.Order{
		{ID: "1", Status: model.StatusPending, Customer: model.Customer{Name: "Juan Pérez"}},
		{ID: "2", Status: model.StatusPreparing, Customer: model.Customer{Name: "María"}},
		{ID: "3", Status: model.StatusDelivered, Customer: model.Customer{Name: "JUANA"}},
	}
	b := Buckets(in, "juan")

	require.Len(t, b.Pending, 1)
	assert.Empty(t, b.Preparing)
	require.Len(t, b.Delivered, 1)
	assert.Equal(t, "3", b.Delivered[0].ID)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	juan := model.Order{OrderNumber: "A1B2", Customer: model.Customer{Name: "Juan Pérez", Phone: "+51 987 654 321"}}
	other := model.Order{OrderNumber: "Z9", Customer: model.Customer{Name: "Rosa Díaz", Phone: "+51 111 222 333"}}

	tests := []struct {
		name  string
		order model.Order
		query string
		want  bool
	}{
		{name: "name_case_insensitive", order: juan, query: "juan", want: true},
		{name: "accented_upper", order: juan, query: "PÉREZ", want: true},
		{name: "unaccented_query", order: juan, query: "perez", want: true},
		{name: "accented_query_plain_name", order: model.Order{Customer: model.Customer{Name: "Jose Diaz"}}, query: "José", want: true},
		{name: "order_number", order: juan, query: "a1b", want: true},
		{name: "phone", order: juan, query: "654", want: true},
		{name: "empty_query", order: other, query: "", want: true},
		{name: "blank_query", order: other, query: "   ", want: true},
		{name: "unrelated", order: other, query: "juan", want: false},
		{name: "no_fields", order: model.Order{}, query: "x", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Match(tt.order, tt.query))
		})
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := fixture(6)
	snapshot := append([]model.Order(nil), in...)

	out := Filter(in, "0003")
	require.Len(t, out, 1)
	assert.Equal(t, "id-3", out[0].ID)
	assert.Equal(t, snapshot, in)

	assert.Len(t, Filter(in, ""), 6)
}
