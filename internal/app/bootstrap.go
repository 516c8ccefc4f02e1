package app

import (
	"context"
	"fmt"

	"castbot/internal/config"
	"castbot/internal/eventbus"
	"castbot/internal/services/broadcast"
	"castbot/internal/storage"
	"castbot/internal/transport"
	"castbot/pkg/logx"
)

// LoadConfig reads and validates the config file. requireToken is false for
// commands that never talk to Telegram.
func LoadConfig(path string, requireToken bool) (*config.Manager, *config.Config, error) {
	cfgm := config.NewManager(path, requireToken)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfgm, cfg, nil
}

// mapLoggingConfig maps the file config to logx. The Telegram sink reports to
// the admin unless a chat is configured.
func mapLoggingConfig(cfg *config.Config) logx.Config {
	chatID := cfg.Logging.Telegram.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.AdminUserID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// newLock builds the single-broadcast lock. The returned close func releases
// the redis client, if any.
func newLock(ctx context.Context, b config.Broadcast, log logx.Logger) (broadcast.Lock, func() error, error) {
	if b.Lock.Driver != "redis" {
		return broadcast.NewMemoryLock(), func() error { return nil }, nil
	}
	client, err := broadcast.NewRedisClient(ctx, broadcast.RedisOptions{
		Addr:     b.Lock.RedisAddr,
		Password: b.Lock.RedisPassword,
		DB:       b.Lock.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("broadcast lock: redis", logx.String("addr", b.Lock.RedisAddr), logx.String("key", b.Lock.Key))
	return broadcast.NewRedisLock(client, b.Lock.Key, b.Lock.TTL, log), client.Close, nil
}

func newBroadcastService(b config.Broadcast, sender transport.Sender, store storage.Store, lock broadcast.Lock, bus eventbus.Bus, log logx.Logger) *broadcast.Service {
	disp := broadcast.NewDispatcher(broadcast.DispatcherConfig{
		RatePerSec:  b.RatePerSec,
		Burst:       b.Burst,
		Workers:     b.Workers,
		SendTimeout: b.SendTimeout,
	}, sender, store, bus, log)
	return broadcast.NewService(broadcast.Config{
		StatusMax: b.StatusMax,
		StatusTTL: b.StatusTTL,
	}, disp, store, lock, bus, log, nil)
}
