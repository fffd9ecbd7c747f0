package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metricboard/notifier/internal/auth"
	"github.com/metricboard/notifier/internal/engine"
	"github.com/metricboard/notifier/internal/handlers"
	"github.com/metricboard/notifier/internal/scheduler"
	"github.com/metricboard/notifier/internal/sender"
	"github.com/metricboard/notifier/internal/settings"
	"github.com/urfave/cli/v3"
)

func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "start the HTTP trigger (default)",
		Action: a.serve,
	}
}

func (a *App) serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := sender.NewHub(a.log.Component("hub"))
	external, closeSinks, err := a.externalSinks()
	if err != nil {
		return err
	}
	defer closeSinks()
	eng, err := a.newEngine(db, append(sender.Multi{hub}, external...))
	if err != nil {
		return err
	}

	if a.cfg.SchedulerEnabled {
		sched := scheduler.New(eng, a.cfg.ScheduleInterval, a.cfg.RunTimeout, a.log)
		sched.Start(ctx)
		defer sched.Stop()
	}

	if a.cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Deps{
		DB:           db.DB,
		Health:       db,
		Engine:       eng,
		Hub:          hub,
		Verifier:     auth.NewVerifier(a.cfg.JWTSecret),
		TriggerRoles: a.cfg.TriggerRoles,
		Logger:       a.log.Component("http"),
	})
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute the job once and print the result as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "at",
				Usage: "reference time (RFC3339); defaults to now",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			external, closeSinks, err := a.externalSinks()
			if err != nil {
				return err
			}
			defer closeSinks()
			eng, err := a.newEngine(db, external)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
			defer cancel()
			var res *engine.Result
			if at := cmd.String("at"); at != "" {
				t, perr := time.Parse(time.RFC3339, at)
				if perr != nil {
					return fmt.Errorf("invalid --at: %w", perr)
				}
				res, err = eng.RunAt(ctx, t)
			} else {
				res, err = eng.Run(ctx)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func (a *App) seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "insert default notification settings for missing keys",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := settings.Seed(ctx, db.DB)
			if err != nil {
				return err
			}
			a.log.WithField("created", n).Info("notification settings seeded")
			return nil
		},
	}
}

func (a *App) tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a bearer token for the trigger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "scheduler", Usage: "token subject"},
			&cli.StringFlag{Name: "role", Value: "service_role", Usage: "role claim"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			v := auth.NewVerifier(a.cfg.JWTSecret)
			if v == nil {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := v.IssueToken(cmd.String("subject"), cmd.String("role"), cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
}
