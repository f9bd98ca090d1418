package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/campuspulse/campuspulse/internal/config"
)

func serve(c *cli.Context) error {
	a, err := loadApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Auth.Secret == "" {
		return errors.New("auth.secret (CAMPUSPULSE_AUTH_SECRET) is required to serve")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      a.srv.Router(),
		ReadTimeout:  config.Duration(a.cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(a.cfg.Server.WriteTimeout),
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("campuspulse listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(a.cfg.Server.ShutdownTimeout))
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if a.cfg.Scheduler.Enabled {
		sched := a.srv.Scheduler()
		g.Go(func() error {
			sched.Start(gctx)
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	} else {
		a.logger.Info("scheduler disabled; run `campuspulse tick` externally")
	}

	g.Go(func() error {
		a.srv.RateLimiter().RunCleanup(gctx, 5*time.Minute)
		return nil
	})

	return g.Wait()
}
