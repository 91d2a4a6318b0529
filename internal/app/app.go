// Package app wires the order engine, its collaborators and the HTTP
// surface from a Config.
package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliamunaev/orderdesk/internal/config"
	"github.com/iliamunaev/orderdesk/internal/middleware"
	"github.com/iliamunaev/orderdesk/internal/order"
	"github.com/iliamunaev/orderdesk/internal/remote"
	"github.com/iliamunaev/orderdesk/internal/service/alert"
	"github.com/iliamunaev/orderdesk/internal/service/normalize"
	"github.com/iliamunaev/orderdesk/internal/service/projector"
	httptransport "github.com/iliamunaev/orderdesk/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Engine *order.Engine
	Feed   *alert.Feed
	Server *http.Server

	cfg   config.Config
	redis *redis.Client
	log   *logrus.Entry
}

// NewLogger builds the root logger from the level name and format flag.
func NewLogger(level string, asJSON bool, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	if asJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// New assembles the service. Nothing is started until Run.
func New(cfg config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logrus.NewEntry(logger)

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log.WithField("component", "app")}

	var sinks []alert.Sink
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sinks = append(sinks, alert.NewRedisSink(a.redis, cfg.RedisChannel))
	}

	clock := clockwork.NewRealClock()
	a.Feed = alert.NewFeed(clock, cfg.AlertTTL, log, sinks...)
	a.Engine = order.New(client, a.Feed, order.Config{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		MutationSlots:  cfg.MutationSlots,
		Clock:          clock,
		Log:            log,
	})

	r := mux.NewRouter()
	r.Use(middleware.Logging(log.WithField("component", "access")))
	httptransport.New(a.Engine, a.Feed, cfg.RequestTimeout, log).Register(r)

	a.Server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// Run activates the configured business, serves HTTP until ctx is done and
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.log.WithError(err).Warn("redis unreachable, alerts will not be forwarded until it is back")
		}
	}

	if a.cfg.BusinessID != "" {
		if err := a.Engine.Activate(a.cfg.BusinessID); err != nil {
			return errors.Wrap(err, "activate business")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.Server.Addr).Info("listening")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http shutdown")
	}
	if err := a.Close(); err != nil {
		a.log.WithError(err).Warn("close")
	}
	return serveErr
}

// Close stops the engine, drains alert forwarding and releases redis.
func (a *App) Close() error {
	err := a.Engine.Close()
	a.Feed.Close()
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close redis")
		}
	}
	return err
}

// Snapshot fetches businessID once and writes its board as indented JSON.
func Snapshot(ctx context.Context, cfg config.Config, businessID, query string, out io.Writer) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raws, err := client.FetchOrders(ctx, businessID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(projector.Buckets(normalize.Orders(raws), query))
}

func newClient(cfg config.Config) (*remote.Client, error) {
	opts := []remote.Option{
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout + 5*time.Second}),
	}
	if cfg.SourceToken != "" {
		opts = append(opts, remote.WithToken(cfg.SourceToken))
	}
	client, err := remote.New(cfg.SourceURL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "remote client")
	}
	return client, nil
}
