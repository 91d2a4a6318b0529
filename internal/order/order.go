// Package order is the order engine: it keeps the order snapshot of the
// active business in sync with the remote source and runs the workflow on it.
package order

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/orderdesk/internal/apperr"
	"github.com/iliamunaev/orderdesk/internal/model"
	"github.com/iliamunaev/orderdesk/internal/service/alert"
	"github.com/iliamunaev/orderdesk/internal/service/delta"
	"github.com/iliamunaev/orderdesk/internal/service/pool"
	"github.com/iliamunaev/orderdesk/internal/service/projector"
	"github.com/iliamunaev/orderdesk/internal/service/syncer"
	"github.com/iliamunaev/orderdesk/internal/service/tracker"
	"github.com/iliamunaev/orderdesk/internal/service/transition"
	"github.com/iliamunaev/orderdesk/internal/service/urgency"
)

const DefaultMutationSlots = 4

// Source is the remote order source.
type Source interface {
	FetchOrders(ctx context.Context, businessID string) ([]json.RawMessage, error)
	SetOrderStatus(ctx context.Context, orderID string, status model.Status) (json.RawMessage, error)
}

// Config tunes an Engine. Zero values fall back to defaults.
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	MutationSlots  int
	Clock          clockwork.Clock
	Log            *logrus.Entry
}

// State summarizes the engine for the presentation layer.
type State struct {
	BusinessID    string        `json:"business_id"`
	Orders        int           `json:"orders"`
	Primed        bool          `json:"primed"`
	Known         []string      `json:"known_ids"`
	Sync          syncer.State  `json:"sync"`
	Fetches       tracker.Stats `json:"fetches"`
	Mutations     tracker.Stats `json:"mutations"`
	MutationSlots int           `json:"mutation_slots"`
	MutationsBusy int           `json:"mutation_slots_in_use"`
}

// Engine serves one business context at a time. Switching the context
// discards the store and starts detection over as a first load.
type Engine struct {
	src       Source
	feed      *alert.Feed
	clock     clockwork.Clock
	interval  time.Duration
	timeout   time.Duration
	limiter   *pool.Pool
	fetches   *tracker.Tracker
	mutations *tracker.Tracker
	log       *logrus.Entry

	mu     sync.Mutex
	sess   *session
	closed bool
}

// session is everything owned by one business context.
type session struct {
	businessID string
	store      *Store
	detector   *delta.Detector
	urgency    *urgency.Clock
	syncer     *syncer.Syncer
	trans      *transition.Manager

	cancel context.CancelFunc
	wait   func() error
}

// New returns an Engine with no active business. It panics if src is nil.
// feed may be nil, in which case a private feed is created.
func New(src Source, feed *alert.Feed, cfg Config) *Engine {
	if src == nil {
		panic("order.New: nil source")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.MutationSlots <= 0 {
		cfg.MutationSlots = DefaultMutationSlots
	}
	if feed == nil {
		feed = alert.NewFeed(cfg.Clock, alert.DefaultTTL, cfg.Log)
	}
	return &Engine{
		src:       src,
		feed:      feed,
		clock:     cfg.Clock,
		interval:  cfg.Interval,
		timeout:   cfg.RequestTimeout,
		limiter:   pool.New(cfg.MutationSlots),
		fetches:   &tracker.Tracker{},
		mutations: &tracker.Tracker{},
		log:       cfg.Log.WithField("component", "engine"),
	}
}

// Activate makes businessID the active context. Activating the current
// business is a no-op; an empty id tears the current context down.
func (e *Engine) Activate(businessID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return apperr.ErrClosed
	}
	old := e.sess
	if old != nil && old.businessID == businessID {
		e.mu.Unlock()
		return nil
	}
	e.sess = nil
	e.feed.Clear()
	if businessID != "" {
		e.sess = e.start(businessID)
	}
	e.mu.Unlock()

	// teardown runs unlocked: a fetch completing now blocks on e.mu in apply
	e.teardown(old)
	return nil
}

// Close tears down the active context. Later calls return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	old := e.sess
	e.sess = nil
	e.feed.Clear()
	e.mu.Unlock()

	return e.teardown(old)
}

// BusinessID returns the active business, or "" if none.
func (e *Engine) BusinessID() string {
	if s := e.current(); s != nil {
		return s.businessID
	}
	return ""
}

// Feed is the new-order stream of the engine.
func (e *Engine) Feed() *alert.Feed { return e.feed }

// Orders returns the current snapshot in source order.
func (e *Engine) Orders() []model.Order {
	s := e.current()
	if s == nil {
		return []model.Order{}
	}
	return s.store.Orders()
}

// Order returns one order of the current snapshot.
func (e *Engine) Order(id string) (model.Order, error) {
	s, err := e.active()
	if err != nil {
		return model.Order{}, err
	}
	o, ok := s.store.Get(id)
	if !ok {
		return model.Order{}, errors.Wrapf(apperr.ErrOrderNotFound, "order %s", id)
	}
	return o, nil
}

// Buckets partitions the orders matching query by workflow stage.
func (e *Engine) Buckets(query string) projector.Board {
	return projector.Buckets(e.Orders(), query)
}

// Search returns the orders matching query in source order.
func (e *Engine) Search(query string) []model.Order {
	return projector.Filter(e.Orders(), query)
}

// Urgency returns the current reading of a pending order.
func (e *Engine) Urgency(id string) (urgency.Reading, error) {
	s, err := e.active()
	if err != nil {
		return urgency.Reading{}, err
	}
	o, ok := s.store.Get(id)
	if !ok {
		return urgency.Reading{}, errors.Wrapf(apperr.ErrOrderNotFound, "order %s", id)
	}
	if o.Status != model.StatusPending {
		return urgency.Reading{}, errors.Wrapf(apperr.ErrNotPending, "order %s is %s", o.OrderNumber, o.Status)
	}
	if r, ok := s.urgency.Reading(id); ok {
		return r, nil
	}
	// arrived since the last tick
	return urgency.Read(o.ID, o.CreatedAt, e.clock.Now()), nil
}

// Readings returns the urgency of every pending order keyed by id.
func (e *Engine) Readings() map[string]urgency.Reading {
	s := e.current()
	if s == nil {
		return map[string]urgency.Reading{}
	}
	return s.urgency.Readings()
}

// InFlight reports whether a transition for id is running.
func (e *Engine) InFlight(id string) bool {
	s := e.current()
	return s != nil && s.trans.InFlight(id)
}

func (e *Engine) Accept(ctx context.Context, id string) (model.Order, error) {
	return e.Apply(ctx, id, model.ActionAccept)
}

func (e *Engine) Reject(ctx context.Context, id string) (model.Order, error) {
	return e.Apply(ctx, id, model.ActionReject)
}

func (e *Engine) Dispatch(ctx context.Context, id string) (model.Order, error) {
	return e.Apply(ctx, id, model.ActionDispatch)
}

func (e *Engine) ConfirmDelivered(ctx context.Context, id string) (model.Order, error) {
	return e.Apply(ctx, id, model.ActionConfirmDelivered)
}

// Apply runs a workflow action on order id of the active business.
func (e *Engine) Apply(ctx context.Context, id string, action model.Action) (model.Order, error) {
	s, err := e.active()
	if err != nil {
		return model.Order{}, err
	}

	o, err := s.trans.Apply(ctx, id, action)
	if err != nil {
		return o, err
	}

	// the order left pending: drop its counter and alert now, not on the next tick
	s.urgency.Refresh()
	e.feed.Dismiss(id)
	return o, nil
}

// RefreshNow fetches the active business out of band.
func (e *Engine) RefreshNow(ctx context.Context) error {
	s, err := e.active()
	if err != nil {
		return err
	}
	return s.syncer.RefreshNow(ctx)
}

// State reports the active context and its synchronization state.
func (e *Engine) State() State {
	st := State{
		Fetches:       e.fetches.Stats(),
		Mutations:     e.mutations.Stats(),
		MutationSlots: e.limiter.Size(),
		MutationsBusy: e.limiter.InUse(),
	}
	s := e.current()
	if s == nil {
		return st
	}
	st.BusinessID = s.businessID
	st.Orders = s.store.Len()
	st.Sync = s.syncer.State()

	// the detector is guarded by e.mu, which is never held across syncer calls
	e.mu.Lock()
	st.Primed = s.detector.Primed()
	st.Known = s.detector.Baseline()
	e.mu.Unlock()
	return st
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) active() (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, apperr.ErrClosed
	}
	if e.sess == nil {
		return nil, apperr.ErrNoBusiness
	}
	return e.sess, nil
}

// start builds and launches a session. Callers hold e.mu.
func (e *Engine) start(businessID string) *session {
	log := e.log.WithField("business_id", businessID)

	s := &session{
		businessID: businessID,
		store:      NewStore(),
		detector:   delta.New(businessID, e.clock.Now),
	}
	s.urgency = urgency.NewClock(e.clock, s.store.Pending)
	s.trans = transition.NewManager(s.store, e.src, e.limiter, e.mutations, log)
	s.syncer = syncer.New(syncer.Config{
		BusinessID:     businessID,
		Interval:       e.interval,
		RequestTimeout: e.timeout,
		Clock:          e.clock,
		Tracker:        e.fetches,
		Log:            log,
		Mark:           s.store.Version,
	}, e.src, e.apply(s))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.urgency.Run(gctx)
	})
	g.Go(func() error {
		if err := s.syncer.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		return s.syncer.Stop()
	})
	s.cancel = cancel
	s.wait = g.Wait

	log.Info("business activated")
	return s
}

func (e *Engine) teardown(s *session) error {
	if s == nil {
		return nil
	}
	s.cancel()
	err := s.wait()
	if err != nil {
		e.log.WithError(err).WithField("business_id", s.businessID).Warn("business teardown")
		return errors.Wrapf(err, "tear down business %s", s.businessID)
	}
	e.log.WithField("business_id", s.businessID).Info("business deactivated")
	return nil
}

// apply is the snapshot sink of a session. A snapshot for a session that is
// no longer current is dropped. Statuses confirmed after the fetch was
// issued survive it.
func (e *Engine) apply(s *session) syncer.Sink {
	return func(snap syncer.Snapshot) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sess != s {
			e.log.WithFields(logrus.Fields{"business_id": s.businessID, "seq": snap.Seq}).Debug("discarding snapshot of inactive business")
			return
		}

		if kept := s.store.Replace(snap.Orders, snap.Mark); len(kept) > 0 {
			e.log.WithFields(logrus.Fields{"business_id": s.businessID, "seq": snap.Seq, "orders": kept}).Debug("kept statuses confirmed after fetch was issued")
		}
		events := s.detector.Observe(snap.Orders)
		s.urgency.Refresh()
		e.feed.Publish(events...)
	}
}
