package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Ops          OpsConfig          `json:"ops,omitempty"`
	Housekeeping HousekeepingConfig `json:"housekeeping,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserID is the only user allowed to start a broadcast.
	AdminUserID int64 `json:"admin_user_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log records to a chat. ChatID defaults to the admin.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the subscriber database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/castbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/castbot" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn,omitempty"`
	Path         string `json:"path,omitempty"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// BroadcastConfig controls fan-out pacing and job bookkeeping.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 25
//   - burst: 1
//   - workers: 4
//   - send_timeout: "15s"
//   - await_timeout: "10m"
//   - status_max: 50
//   - status_ttl: "24h"
type BroadcastConfig struct {
	RatePerSec   float64    `json:"rate_per_sec"`
	Burst        int        `json:"burst"`
	Workers      int        `json:"workers"`
	SendTimeout  string     `json:"send_timeout"`
	AwaitTimeout string     `json:"await_timeout"`
	StatusMax    int        `json:"status_max,omitempty"`
	StatusTTL    string     `json:"status_ttl,omitempty"`
	Lock         LockConfig `json:"lock"`
}

// LockConfig selects the single-broadcast lock. "redis" lets the CLI and the
// running bot exclude each other.
type LockConfig struct {
	Driver        string `json:"driver"` // memory|redis
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"` // do not log
	RedisDB       int    `json:"redis_db,omitempty"`
	Key           string `json:"key,omitempty"`
	TTL           string `json:"ttl,omitempty"`
}

// OpsConfig controls the operational HTTP server (health, metrics, pprof, job status).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
	Pprof   bool   `json:"pprof,omitempty"`
}

// HousekeepingConfig schedules the periodic sweep (stale conversation states,
// old job statuses). Sweep uses robfig/cron syntax, e.g. "@every 1m".
type HousekeepingConfig struct {
	Sweep string `json:"sweep,omitempty"`
}
