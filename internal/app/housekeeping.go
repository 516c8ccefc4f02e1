package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"castbot/pkg/logx"
)

// sweeper is one periodic cleanup step. It returns how many entries it dropped.
type sweeper struct {
	name string
	fn   func() int
}

// housekeeper runs the sweepers on a cron schedule. Overlapping runs are skipped.
type housekeeper struct {
	log      logx.Logger
	c        *cron.Cron
	sweepers []sweeper
}

func newHousekeeper(spec string, log logx.Logger, sweepers ...sweeper) (*housekeeper, error) {
	h := &housekeeper{log: log.With(logx.String("comp", "housekeeping")), sweepers: sweepers}
	cl := cronLogger{log: h.log}
	h.c = cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	if _, err := h.c.AddFunc(spec, h.sweep); err != nil {
		return nil, fmt.Errorf("housekeeping.sweep %q: %w", spec, err)
	}
	return h, nil
}

func (h *housekeeper) sweep() {
	start := time.Now()
	fields := make([]logx.Field, 0, len(h.sweepers)+1)
	total := 0
	for _, s := range h.sweepers {
		n := s.fn()
		total += n
		fields = append(fields, logx.Int(s.name, n))
	}
	fields = append(fields, logx.Duration("took", time.Since(start)))
	if total > 0 {
		h.log.Info("housekeeping sweep", fields...)
	} else {
		h.log.Trace("housekeeping sweep", fields...)
	}
}

func (h *housekeeper) Start() { h.c.Start() }

// Stop waits for a running sweep, bounded by ctx.
func (h *housekeeper) Stop(ctx context.Context) error {
	done := h.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
