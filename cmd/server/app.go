package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/metricboard/notifier/internal/config"
	"github.com/metricboard/notifier/internal/engine"
	"github.com/metricboard/notifier/internal/logging"
	"github.com/metricboard/notifier/internal/sender"
	"github.com/metricboard/notifier/internal/store"
	"github.com/urfave/cli/v3"
)

// App holds state shared by every subcommand.
type App struct {
	cfg *config.Config
	log *logging.Logger
}

func newApp() *App { return &App{} }

func (a *App) Command() *cli.Command {
	return &cli.Command{
		Name:    "notifier",
		Usage:   "KPI reminder and goal audit notifications",
		Version: version,
		Description: `Runs the automatic-notifications job for the metrics dashboard.

   'notifier serve' exposes the HTTP trigger (and the hourly scheduler when
   SCHEDULER_ENABLED=true). 'notifier run' executes the job once and prints
   the result.`,
		Before: a.before,
		After: func(ctx context.Context, cmd *cli.Command) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			a.serveCommand(),
			a.runCommand(),
			a.seedCommand(),
			a.tokenCommand(),
		},
		Action: a.serve,
	}
}

func (a *App) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, err
	}
	l, err := logging.New(cfg.Log)
	if err != nil {
		return ctx, fmt.Errorf("init logging: %w", err)
	}
	a.cfg, a.log = cfg, l
	return ctx, nil
}

func (a *App) openDB(ctx context.Context) (*store.DB, error) {
	db, err := store.Open(ctx, store.Options{
		DatabaseURL: a.cfg.DatabaseURL,
		SQLitePath:  a.cfg.DBPath,
		MaxConns:    a.cfg.DBMaxConns,
		AutoMigrate: a.cfg.AutoMigrate,
		Logger:      a.log.Component("gorm"),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// externalSinks builds the optional Kafka and Telegram sinks. The returned
// closer releases whatever was opened.
func (a *App) externalSinks() (sender.Multi, func() error, error) {
	var (
		sinks   sender.Multi
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	if a.cfg.Kafka.Enabled() {
		k := sender.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
		a.log.WithField("topic", a.cfg.Kafka.Topic).Info("kafka sink enabled")
	}
	if a.cfg.Telegram.Enabled() {
		tg, err := sender.NewTelegramSink(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
		a.log.Info("telegram sink enabled")
	}
	return sinks, closeAll, nil
}

func (a *App) newEngine(db *store.DB, sink sender.Sink) (*engine.Engine, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		DB:       db.DB,
		Logger:   a.log,
		Location: loc,
		Sink:     sink,
	}), nil
}
