// Package transition validates and executes order workflow transitions
// against the remote order source.
//
// Transitions are confirm-then-apply: the local store only changes after the
// remote source accepted the new status. At most one transition per order
// is in flight; a concurrent request for the same order fails fast instead
// of queueing.
package transition

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliamunaev/orderdesk/internal/apperr"
	"github.com/iliamunaev/orderdesk/internal/model"
	"github.com/iliamunaev/orderdesk/internal/service/tracker"
)

// edges is the complete workflow. Anything not listed is invalid.
var edges = map[model.Status]map[model.Action]model.Status{
	model.StatusPending: {
		model.ActionAccept: model.StatusPreparing,
		model.ActionReject: model.StatusCancelled,
	},
	model.StatusPreparing: {
		model.ActionDispatch: model.StatusDelivering,
	},
	model.StatusDelivering: {
		model.ActionConfirmDelivered: model.StatusDelivered,
	},
}

// actionOrder keeps Available deterministic.
var actionOrder = []model.Action{
	model.ActionAccept,
	model.ActionReject,
	model.ActionDispatch,
	model.ActionConfirmDelivered,
}

// Next returns the status reached by applying action to from.
func Next(from model.Status, action model.Action) (model.Status, error) {
	to, ok := edges[from][action]
	if !ok {
		return "", errors.Wrapf(apperr.ErrInvalidTransition, "%s from %s", action, from)
	}
	return to, nil
}

// Available lists the actions valid from st.
func Available(st model.Status) []model.Action {
	out := []model.Action{}
	if st.Terminal() {
		return out
	}
	for _, a := range actionOrder {
		if _, ok := edges[st][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Error is a transition the remote source did not confirm. Its message
// names the order number so it can be shown to staff as is.
type Error struct {
	OrderID     string
	OrderNumber string
	Action      model.Action
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("order %s: %s failed: %v", e.OrderNumber, e.Action, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Kind() string  { return "transition_failed" }

// Store is the engine-owned order store.
type Store interface {
	Get(id string) (model.Order, bool)
	SetStatus(id string, st model.Status) bool
}

// Updater performs the remote status change.
type Updater interface {
	SetOrderStatus(ctx context.Context, orderID string, status model.Status) (json.RawMessage, error)
}

// Limiter bounds concurrent remote mutations across orders.
type Limiter interface {
	Acquire(context.Context) error
	Release()
}

// Manager executes transitions with per-order exclusivity.
type Manager struct {
	store   Store
	remote  Updater
	limiter Limiter
	tr      *tracker.Tracker
	log     *logrus.Entry

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewManager wires a Manager. It panics if store or remote is nil.
// limiter and tr are optional.
func NewManager(store Store, remote Updater, limiter Limiter, tr *tracker.Tracker, log *logrus.Entry) *Manager {
	if store == nil {
		panic("transition.NewManager: nil store")
	}
	if remote == nil {
		panic("transition.NewManager: nil remote")
	}
	if tr == nil {
		tr = &tracker.Tracker{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		store:    store,
		remote:   remote,
		limiter:  limiter,
		tr:       tr,
		log:      log.WithField("component", "transition"),
		inFlight: make(map[string]struct{}),
	}
}

// Apply runs action on order id and returns the order as confirmed.
//
// Invalid edges and unknown orders fail without a remote call. A remote
// failure leaves the store untouched and is returned as *Error.
func (m *Manager) Apply(ctx context.Context, id string, action model.Action) (model.Order, error) {
	if !m.mark(id) {
		return model.Order{}, errors.Wrapf(apperr.ErrTransitionInFlight, "order %s", id)
	}
	defer m.unmark(id)

	o, ok := m.store.Get(id)
	if !ok {
		return model.Order{}, errors.Wrapf(apperr.ErrOrderNotFound, "order %s", id)
	}

	to, err := Next(o.Status, action)
	if err != nil {
		return o, errors.Wrapf(err, "order %s", o.OrderNumber)
	}

	if m.limiter != nil {
		if err := m.limiter.Acquire(ctx); err != nil {
			return o, &Error{OrderID: id, OrderNumber: o.OrderNumber, Action: action, Err: err}
		}
		defer m.limiter.Release()
	}

	log := m.log.WithFields(logrus.Fields{
		"order_id":     id,
		"order_number": o.OrderNumber,
		"action":       action,
		"from":         o.Status,
		"to":           to,
	})

	m.tr.Inc()
	_, err = m.remote.SetOrderStatus(ctx, id, to)
	m.tr.Done(err)
	if err != nil {
		log.WithError(err).Warn("status update rejected")
		return o, &Error{OrderID: id, OrderNumber: o.OrderNumber, Action: action, Err: err}
	}

	if !m.store.SetStatus(id, to) {
		// a snapshot dropped the order while the update was in flight
		log.Debug("confirmed order no longer in store")
	}
	log.Info("status updated")

	o.Status = to
	return o, nil
}

// InFlight reports whether a transition for id is running.
func (m *Manager) InFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[id]
	return ok
}

func (m *Manager) mark(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[id]; busy {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) unmark(id string) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}
