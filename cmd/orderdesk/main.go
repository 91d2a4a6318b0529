package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iliamunaev/orderdesk/internal/app"
	"github.com/iliamunaev/orderdesk/internal/config"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("orderdesk")
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "orderdesk",
		Usage: "keep a business's orders in sync and run their workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional dotenv file"},
			&cli.StringFlag{Name: "source-url", Usage: "base URL of the order source"},
			&cli.StringFlag{Name: "business", Aliases: []string{"b"}, Usage: "business to activate"},
			&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error"},
			&cli.BoolFlag{Name: "log-json", Usage: "log as JSON"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "poll the source and serve the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "snapshot interval"},
				},
				Action: serve,
			},
			{
				Name:      "snapshot",
				Usage:     "fetch one snapshot and print its board",
				ArgsUsage: "[query]",
				Action:    snapshot,
			},
		},
	}
}

// loadConfig reads env and dotenv, then applies flags that were set.
func loadConfig(c *cli.Context) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return cfg, nil, err
	}

	if c.IsSet("source-url") {
		cfg.SourceURL = c.String("source-url")
	}
	if c.IsSet("business") {
		cfg.BusinessID = c.String("business")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.LogJSON = c.Bool("log-json")
	}
	if c.IsSet("addr") {
		cfg.HTTPAddr = c.String("addr")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Duration("poll-interval")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogJSON, c.App.ErrWriter)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"business_id":   cfg.BusinessID,
		"poll_interval": cfg.PollInterval,
		"redis":         cfg.RedisAddr != "",
	}).Info("starting")
	return a.Run(ctx)
}

func snapshot(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.BusinessID == "" {
		return cli.Exit("snapshot needs a business (--business or ORDERDESK_BUSINESS_ID)", 2)
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.RequestTimeout+5*time.Second)
	defer cancel()
	return app.Snapshot(ctx, cfg, cfg.BusinessID, c.Args().First(), c.App.Writer)
}
