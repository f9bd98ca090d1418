package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/campuspulse/campuspulse/internal/auth"
	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/config"
	"github.com/campuspulse/campuspulse/internal/database"
	"github.com/campuspulse/campuspulse/internal/lifecycle"
	"github.com/campuspulse/campuspulse/internal/logging"
	"github.com/campuspulse/campuspulse/internal/push"
	"github.com/campuspulse/campuspulse/internal/server"
)

// app is everything a command needs, built from the loaded config.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	srv    *server.Server
	closer []func()
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

func loadApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db}
	a.closer = append(a.closer, func() { db.Close() })

	transport, vapidKey := buildTransport(cfg.Push, logger)
	logger.Info("push transport configured", "transport", cfg.Push.Transport)

	a.srv = server.New(db, transport, clock.Real{}, server.Options{
		Lifecycle: lifecycle.Config{
			ExpectedTimeUnit: config.Duration(cfg.Lifecycle.ExpectedTimeUnit),
			FeedbackCooldown: config.Duration(cfg.Lifecycle.FeedbackCooldown),
		},
		Dispatch: push.DispatchConfig{
			SendDelay:   config.Duration(cfg.Dispatch.SendDelay),
			SendTimeout: config.Duration(cfg.Dispatch.SendTimeout),
			Location:    cfg.Dispatch.Location(),
		},
		Scheduler: push.SchedulerConfig{
			Interval:     config.Duration(cfg.Scheduler.Interval),
			Thresholds:   push.ThresholdsFor(cfg.Scheduler.Leads()...),
			Retention:    config.Duration(cfg.Scheduler.Retention),
			PendingBatch: cfg.Scheduler.PendingBatch,
		},
		Verifier:       auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
		VAPIDPublicKey: vapidKey,
		OriginPatterns: cfg.Server.AllowedOrigins,
	}, logger)

	if cfg.Redis.Addr != "" {
		client, err := push.NewRedisClient(c.Context, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closer = append(a.closer, func() { client.Close() })
		a.srv.Scheduler().SetLocker(push.NewRedisLocker(client, cfg.Scheduler.LockKey, config.Duration(cfg.Scheduler.LockTTL), logger))
		logger.Info("distributed tick lock enabled", "redis", cfg.Redis.Addr, "key", cfg.Scheduler.LockKey)
	}
	return a, nil
}

// buildTransport returns the configured transport and the VAPID public key
// clients need, empty when web push is off.
func buildTransport(cfg config.PushConfig, logger *slog.Logger) (push.Transport, string) {
	switch cfg.Transport {
	case config.TransportWebPush:
		wp := push.NewWebPush(cfg.WebPush.PublicKey, cfg.WebPush.PrivateKey, cfg.WebPush.Subscriber)
		return wp, wp.VAPIDPublicKey()
	case config.TransportGateway:
		return push.NewGateway(cfg.Gateway.URL, cfg.Gateway.APIKey), ""
	case config.TransportMux:
		wp := push.NewWebPush(cfg.WebPush.PublicKey, cfg.WebPush.PrivateKey, cfg.WebPush.Subscriber)
		return &push.Mux{Web: wp, Native: push.NewGateway(cfg.Gateway.URL, cfg.Gateway.APIKey)}, wp.VAPIDPublicKey()
	default:
		return push.NewSimulated(logger), ""
	}
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	v, err := database.Version(db)
	if err != nil {
		return err
	}
	logger.Info("database migrated", "path", cfg.Database.Path, "version", v)
	return nil
}

func vapid(c *cli.Context) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate keys: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "CAMPUSPULSE_VAPID_PUBLIC_KEY=%s\nCAMPUSPULSE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}

func tick(c *cli.Context) error {
	a, err := loadApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(c.Context, config.Duration(a.cfg.Scheduler.LockTTL))
	defer cancel()

	report, err := a.srv.Scheduler().Tick(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("tick finished",
		"run_id", report.RunID,
		"started", len(report.Advanced.Started),
		"completed", len(report.Advanced.Completed),
		"reminders", report.RemindersCreated,
		"dispatched", report.Dispatched,
		"errors", len(report.Errors),
	)
	if len(report.Errors) > 0 {
		return fmt.Errorf("tick finished with %d errors: %s", len(report.Errors), report.Errors[0])
	}
	return nil
}
