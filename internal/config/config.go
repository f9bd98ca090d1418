// Package config loads campuspulse settings from an optional TOML file,
// applies CAMPUSPULSE_* environment overrides, then fills defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
	Auth      AuthConfig      `toml:"auth"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Push      PushConfig      `toml:"push"`
	Redis     RedisConfig     `toml:"redis"`
}

type ServerConfig struct {
	Port            string `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	// AllowedOrigins are host patterns allowed to open the live feed
	// cross-origin.
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type AuthConfig struct {
	Secret string `toml:"secret"`
	Issuer string `toml:"issuer"`
}

type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      string   `toml:"interval"`
	Retention     string   `toml:"retention"`
	PendingBatch  int      `toml:"pending_batch"`
	LockKey       string   `toml:"lock_key"`
	LockTTL       string   `toml:"lock_ttl"`
	ReminderLeads []string `toml:"reminder_leads"`
}

type DispatchConfig struct {
	SendDelay   string `toml:"send_delay"`
	SendTimeout string `toml:"send_timeout"`
	Timezone    string `toml:"timezone"`
}

type LifecycleConfig struct {
	ExpectedTimeUnit string `toml:"expected_time_unit"`
	FeedbackCooldown string `toml:"feedback_cooldown"`
}

type PushConfig struct {
	// Transport is one of simulated, webpush, gateway or mux.
	Transport string        `toml:"transport"`
	WebPush   WebPushConfig `toml:"webpush"`
	Gateway   GatewayConfig `toml:"gateway"`
}

type WebPushConfig struct {
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
	Subscriber string `toml:"subscriber"`
}

type GatewayConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Transport names.
const (
	TransportSimulated = "simulated"
	TransportWebPush   = "webpush"
	TransportGateway   = "gateway"
	TransportMux       = "mux"
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     "5s",
			WriteTimeout:    "15s",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{Path: "campuspulse.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth:     AuthConfig{Issuer: "campuspulse"},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			Interval:      "15m",
			Retention:     "2160h",
			PendingBatch:  100,
			LockKey:       "campuspulse:scheduler:tick",
			LockTTL:       "5m",
			ReminderLeads: []string{"24h", "2h", "30m"},
		},
		Dispatch: DispatchConfig{
			SendDelay:   "100ms",
			SendTimeout: "10s",
			Timezone:    "UTC",
		},
		Lifecycle: LifecycleConfig{
			ExpectedTimeUnit: "1m",
			FeedbackCooldown: "5m",
		},
		Push: PushConfig{
			Transport: TransportSimulated,
			WebPush:   WebPushConfig{Subscriber: "mailto:admin@campuspulse.local"},
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("CAMPUSPULSE_" + key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("DB_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("AUTH_SECRET", &c.Auth.Secret)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("SCHEDULER_INTERVAL", &c.Scheduler.Interval)
	str("DISPATCH_TIMEZONE", &c.Dispatch.Timezone)
	str("PUSH_TRANSPORT", &c.Push.Transport)
	str("VAPID_PUBLIC_KEY", &c.Push.WebPush.PublicKey)
	str("VAPID_PRIVATE_KEY", &c.Push.WebPush.PrivateKey)
	str("VAPID_SUBSCRIBER", &c.Push.WebPush.Subscriber)
	str("GATEWAY_URL", &c.Push.Gateway.URL)
	str("GATEWAY_API_KEY", &c.Push.Gateway.APIKey)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	if v, ok := lookup("CAMPUSPULSE_SCHEDULER_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAMPUSPULSE_SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = b
	}
	if v, ok := lookup("CAMPUSPULSE_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAMPUSPULSE_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	return nil
}

// Validate checks every duration and enum. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	durations := map[string]string{
		"server.read_timeout":          c.Server.ReadTimeout,
		"server.write_timeout":         c.Server.WriteTimeout,
		"server.shutdown_timeout":      c.Server.ShutdownTimeout,
		"scheduler.interval":           c.Scheduler.Interval,
		"scheduler.retention":          c.Scheduler.Retention,
		"scheduler.lock_ttl":           c.Scheduler.LockTTL,
		"dispatch.send_delay":          c.Dispatch.SendDelay,
		"dispatch.send_timeout":        c.Dispatch.SendTimeout,
		"lifecycle.expected_time_unit": c.Lifecycle.ExpectedTimeUnit,
		"lifecycle.feedback_cooldown":  c.Lifecycle.FeedbackCooldown,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if d, err := time.ParseDuration(c.Scheduler.Interval); err == nil && d <= 0 {
		errs = append(errs, errors.New("scheduler.interval: must be positive"))
	}
	if d, err := time.ParseDuration(c.Lifecycle.ExpectedTimeUnit); err == nil && d <= 0 {
		errs = append(errs, errors.New("lifecycle.expected_time_unit: must be positive"))
	}
	if len(c.Scheduler.ReminderLeads) == 0 {
		errs = append(errs, errors.New("scheduler.reminder_leads: at least one lead is required"))
	}
	for _, lead := range c.Scheduler.ReminderLeads {
		if d, err := time.ParseDuration(lead); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("scheduler.reminder_leads: invalid lead %q", lead))
		}
	}
	if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("dispatch.timezone: %w", err))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.Push.Transport {
	case TransportSimulated:
	case TransportWebPush:
		errs = append(errs, c.Push.WebPush.validate()...)
	case TransportGateway:
		if c.Push.Gateway.URL == "" {
			errs = append(errs, errors.New("push.gateway.url: required for gateway transport"))
		}
	case TransportMux:
		errs = append(errs, c.Push.WebPush.validate()...)
		if c.Push.Gateway.URL == "" {
			errs = append(errs, errors.New("push.gateway.url: required for mux transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("push.transport: unknown transport %q", c.Push.Transport))
	}

	return errors.Join(errs...)
}

func (w WebPushConfig) validate() []error {
	var errs []error
	if w.PublicKey == "" || w.PrivateKey == "" {
		errs = append(errs, errors.New("push.webpush: public_key and private_key are required"))
	}
	if w.Subscriber == "" {
		errs = append(errs, errors.New("push.webpush.subscriber: required"))
	}
	return errs
}

// Duration parses a value already checked by Validate.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Leads returns the reminder lead times, longest first as configured.
func (s SchedulerConfig) Leads() []time.Duration {
	out := make([]time.Duration, 0, len(s.ReminderLeads))
	for _, l := range s.ReminderLeads {
		out = append(out, Duration(l))
	}
	return out
}

// Location returns the dispatch timezone, falling back to UTC.
func (d DispatchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
