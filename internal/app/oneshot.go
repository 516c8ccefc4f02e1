package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/services/broadcast"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/pkg/logx"
)

// RunBroadcast sends text to every subscriber without starting the bot and
// writes a summary to out. With the redis lock it excludes a running bot.
func RunBroadcast(ctx context.Context, cfgPath, text string, out io.Writer) error {
	_, cfg, err := LoadConfig(cfgPath, true)
	if err != nil {
		return err
	}
	b, err := cfg.Broadcast.Resolve()
	if err != nil {
		return err
	}
	log := logx.NewConsole(cfg.Logging.Level)

	pollTimeout, err := cfg.Telegram.PollTimeoutOrDefault()
	if err != nil {
		return err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	octx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	store, err := openStore(octx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	lock, lockClose, err := newLock(octx, b, log)
	if err != nil {
		return err
	}
	defer func() { _ = lockClose() }()

	svc := newBroadcastService(b, ad, store, lock, eventbus.New(), log)
	defer func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		_ = svc.Close(cctx)
	}()

	st, err := svc.Run(ctx, broadcast.Request{Text: text})
	switch {
	case errors.Is(err, broadcast.ErrNoRecipients):
		_, _ = fmt.Fprintln(out, "no subscribers; nothing sent")
		return nil
	case err != nil:
		return err
	}
	_, err = fmt.Fprintf(out, "job %s %s: total=%d delivered=%d unreachable=%d transient=%d skipped=%d took=%s\n",
		st.ID, st.State, st.Total, st.Delivered, st.Unreachable, st.Transient, st.Skipped,
		st.Took(time.Now()).Round(time.Millisecond))
	return err
}

// Migrate creates the schema and exits.
func Migrate(ctx context.Context, cfgPath string, out io.Writer) error {
	_, cfg, err := LoadConfig(cfgPath, false)
	if err != nil {
		return err
	}
	log := logx.NewConsole(cfg.Logging.Level)
	octx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(octx, cfg, log)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "schema up to date (driver=%s)\n", sc.Driver)
	return err
}
