// Package syncer keeps a business's order snapshot fresh by polling the
// remote order source on a fixed interval and on demand.
//
// Fetches never overlap: a request that arrives while one is in flight
// joins it. Responses are applied in the order their requests were issued,
// and nothing is applied once the syncer has been stopped.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iliamunaev/orderdesk/internal/apperr"
	"github.com/iliamunaev/orderdesk/internal/model"
	"github.com/iliamunaev/orderdesk/internal/service/normalize"
	"github.com/iliamunaev/orderdesk/internal/service/tracker"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Fetcher returns the raw order snapshot of a business.
type Fetcher interface {
	FetchOrders(ctx context.Context, businessID string) ([]json.RawMessage, error)
}

// Snapshot is one accepted fetch result.
type Snapshot struct {
	Seq    uint64
	// Mark is Config.Mark sampled when the fetch was issued, or 0.
	Mark   uint64
	Orders []model.Order
}

// Sink receives every accepted snapshot, in issue order. It runs while the
// syncer holds its lock and must not call back into the Syncer.
type Sink func(Snapshot)

// Config parameterizes a Syncer.
type Config struct {
	BusinessID     string
	Interval       time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	Tracker        *tracker.Tracker
	Log            *logrus.Entry
	// Mark, if set, is sampled as each fetch is issued and handed to the
	// sink with its result.
	Mark func() uint64
}

// State is what the presentation layer shows about synchronization.
type State struct {
	Loading     bool      `json:"loading"`
	Err         error     `json:"-"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	Applied     uint64    `json:"applied_seq"`
}

// Syncer owns the polling lifecycle of one business context.
type Syncer struct {
	businessID string
	interval   time.Duration
	timeout    time.Duration
	clock      clockwork.Clock
	src        Fetcher
	sink       Sink
	tr         *tracker.Tracker
	mark       func() uint64
	log        *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu      sync.Mutex
	sched   gocron.Scheduler
	issued  uint64
	applied uint64
	state   State
}

// New returns a stopped Syncer. It panics if src or sink is nil.
func New(cfg Config, src Fetcher, sink Sink) *Syncer {
	if src == nil {
		panic("syncer.New: nil fetcher")
	}
	if sink == nil {
		panic("syncer.New: nil sink")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = &tracker.Tracker{}
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		businessID: cfg.BusinessID,
		interval:   cfg.Interval,
		timeout:    cfg.RequestTimeout,
		clock:      cfg.Clock,
		src:        src,
		sink:       sink,
		tr:         cfg.Tracker,
		mark:       cfg.Mark,
		log:        cfg.Log.WithField("component", "syncer"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start fetches immediately and then every interval until Stop.
func (s *Syncer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return apperr.ErrClosed
	}
	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(cronLogger{s.log}),
		gocron.WithStopTimeout(s.timeout),
	)
	if err != nil {
		return errors.Wrap(err, "create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.poll),
		gocron.WithName("poll-orders:"+s.businessID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return errors.Wrap(err, "schedule poll")
	}

	sched.Start()
	s.sched = sched
	s.log.WithField("interval", s.interval).Info("polling started")
	return nil
}

// RefreshNow fetches out of band. The standing interval is not reset.
// If a fetch is already in flight the call waits for that one instead.
func (s *Syncer) RefreshNow(ctx context.Context) error {
	return s.fetch(ctx)
}

// Stop cancels the interval and any in-flight fetch. Results that arrive
// afterwards are discarded. Stop is idempotent.
func (s *Syncer) Stop() error {
	s.cancel()

	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.state.Loading = false
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	if err := sched.Shutdown(); err != nil {
		return errors.Wrap(err, "stop scheduler")
	}
	s.log.Info("polling stopped")
	return nil
}

// State returns a copy of the current synchronization state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) poll() {
	if err := s.fetch(s.ctx); err != nil && !errors.Is(err, apperr.ErrClosed) {
		s.log.WithError(err).Warn("scheduled fetch failed")
	}
}

func (s *Syncer) fetch(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return apperr.ErrClosed
	}

	ch := s.group.DoChan("fetch", func() (any, error) {
		return nil, s.fetchAndApply()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) fetchAndApply() error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	var mark uint64
	if s.mark != nil {
		mark = s.mark()
	}
	s.state.Loading = true
	s.state.LastAttempt = s.clock.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	s.tr.Inc()
	raws, err := s.src.FetchOrders(ctx, s.businessID)
	s.tr.Done(err)

	var orders []model.Order
	if err == nil {
		orders = normalize.Orders(raws)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return apperr.ErrClosed
	}
	s.state.Loading = false

	if err != nil {
		err = fmt.Errorf("%w: %w", apperr.ErrFetchFailed, err)
		s.state.Err = err
		s.state.LastError = err.Error()
		return err
	}

	if seq <= s.applied {
		s.log.WithFields(logrus.Fields{"seq": seq, "applied": s.applied}).Debug("discarding superseded snapshot")
		return nil
	}
	s.applied = seq
	s.state.Applied = seq
	s.state.Err = nil
	s.state.LastError = ""
	s.state.LastSuccess = s.clock.Now()

	s.sink(Snapshot{Seq: seq, Mark: mark, Orders: orders})
	return nil
}

// cronLogger routes scheduler logs through logrus.
type cronLogger struct {
	log *logrus.Entry
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.WithField("args", args).Debug(msg) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.WithField("args", args).Debug(msg) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.WithField("args", args).Warn(msg) }
func (l cronLogger) Error(msg string, args ...any) { l.log.WithField("args", args).Error(msg) }
