package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultRatePerSec   = 25.0
	DefaultBurst        = 1
	DefaultWorkers      = 4
	DefaultSendTimeout  = 15 * time.Second
	DefaultAwaitTimeout = 10 * time.Minute
	DefaultStatusMax    = 50
	DefaultStatusTTL    = 24 * time.Hour
	DefaultLockKey      = "castbot:broadcast:lock"
	DefaultLockTTL      = 2 * time.Hour
	DefaultPollTimeout  = 10 * time.Second
	DefaultOpsAddr      = "127.0.0.1:9090"
	DefaultSweep        = "@every 1m"
	DefaultSQLitePath   = "./data/castbot.db"
)

// Environment variables that override secrets in the file. The unprefixed
// names are kept for deployments that already export them.
var (
	envToken    = []string{"CASTBOT_BOT_TOKEN", "BOT_TOKEN"}
	envDatabase = []string{"CASTBOT_DATABASE_URL", "DATABASE_URL"}
	envAdmin    = []string{"CASTBOT_ADMIN_ID"}
)

func lookupEnv(getenv func(string) string, names []string) string {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// ApplyEnv fills secrets from the environment. A database URL switches the
// storage driver to the URL's scheme when no driver is configured.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil {
		return nil
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := lookupEnv(getenv, envToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := lookupEnv(getenv, envDatabase); v != "" {
		cfg.Storage.DSN = v
		if strings.TrimSpace(cfg.Storage.Driver) == "" {
			switch {
			case strings.HasPrefix(v, "postgres://"), strings.HasPrefix(v, "postgresql://"):
				cfg.Storage.Driver = "postgres"
			case strings.HasPrefix(v, "mysql://"):
				cfg.Storage.Driver = "mysql"
				cfg.Storage.DSN = strings.TrimPrefix(v, "mysql://")
			}
		}
	}
	if v := lookupEnv(getenv, envAdmin); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid user id %q", envAdmin[0], v)
		}
		cfg.Telegram.AdminUserID = id
	}
	return nil
}

// Broadcast holds parsed broadcast settings with defaults applied.
type Broadcast struct {
	RatePerSec   float64
	Burst        int
	Workers      int
	SendTimeout  time.Duration
	AwaitTimeout time.Duration
	StatusMax    int
	StatusTTL    time.Duration
	Lock         Lock
}

type Lock struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Key           string
	TTL           time.Duration
}

func (c BroadcastConfig) Resolve() (Broadcast, error) {
	out := Broadcast{
		RatePerSec: c.RatePerSec,
		Burst:      c.Burst,
		Workers:    c.Workers,
		StatusMax:  c.StatusMax,
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = DefaultRatePerSec
	}
	if out.Burst <= 0 {
		out.Burst = DefaultBurst
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.StatusMax <= 0 {
		out.StatusMax = DefaultStatusMax
	}
	var err error
	if out.SendTimeout, err = durationOr("broadcast.send_timeout", c.SendTimeout, DefaultSendTimeout); err != nil {
		return Broadcast{}, err
	}
	if out.AwaitTimeout, err = durationOr("broadcast.await_timeout", c.AwaitTimeout, DefaultAwaitTimeout); err != nil {
		return Broadcast{}, err
	}
	if out.StatusTTL, err = durationOr("broadcast.status_ttl", c.StatusTTL, DefaultStatusTTL); err != nil {
		return Broadcast{}, err
	}

	out.Lock = Lock{
		Driver:        strings.ToLower(strings.TrimSpace(c.Lock.Driver)),
		RedisAddr:     strings.TrimSpace(c.Lock.RedisAddr),
		RedisPassword: c.Lock.RedisPassword,
		RedisDB:       c.Lock.RedisDB,
		Key:           strings.TrimSpace(c.Lock.Key),
	}
	if out.Lock.Driver == "" {
		out.Lock.Driver = "memory"
	}
	if out.Lock.Key == "" {
		out.Lock.Key = DefaultLockKey
	}
	if out.Lock.TTL, err = durationOr("broadcast.lock.ttl", c.Lock.TTL, DefaultLockTTL); err != nil {
		return Broadcast{}, err
	}
	switch out.Lock.Driver {
	case "memory":
	case "redis":
		if out.Lock.RedisAddr == "" {
			return Broadcast{}, errors.New("broadcast.lock.redis_addr is required for the redis lock")
		}
	default:
		return Broadcast{}, fmt.Errorf("broadcast.lock.driver: unknown driver %q", c.Lock.Driver)
	}
	return out, nil
}

// PollTimeoutOrDefault returns telegram.poll_timeout with the default applied.
func (c TelegramConfig) PollTimeoutOrDefault() (time.Duration, error) {
	return durationOr("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
}

func (c StorageConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return durationOr("storage.busy_timeout", c.BusyTimeout, 5*time.Second)
}

func (c OpsConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultOpsAddr
}

func (c HousekeepingConfig) SweepOrDefault() string {
	if s := strings.TrimSpace(c.Sweep); s != "" {
		return s
	}
	return DefaultSweep
}

// Validate checks everything needed to start. requireToken is false for
// commands that never talk to Telegram (migrate).
func Validate(cfg *Config, requireToken bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set CASTBOT_BOT_TOKEN)"))
	}
	if requireToken && cfg.Telegram.AdminUserID <= 0 {
		errs = append(errs, errors.New("telegram.admin_user_id is required (or set CASTBOT_ADMIN_ID)"))
	}
	if _, err := cfg.Telegram.PollTimeoutOrDefault(); err != nil {
		errs = append(errs, err)
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg", "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", d))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if _, err := cfg.Storage.BusyTimeoutOrDefault(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Broadcast.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(cfg.Housekeeping.SweepOrDefault()); err != nil {
		errs = append(errs, fmt.Errorf("housekeeping.sweep: %w", err))
	}
	return errors.Join(errs...)
}

// durationOr parses a Go duration string. Empty or zero means def.
func durationOr(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
