package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"castbot/internal/config"
	"castbot/internal/conversation"
	"castbot/internal/eventbus"
	"castbot/internal/menu"
	"castbot/internal/metrics"
	"castbot/internal/ops"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/services/broadcast"
	"castbot/internal/storage"
	"castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/internal/transport/telegram/router"
	"castbot/pkg/logx"
)

const openTimeout = 15 * time.Second

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	lockClose func() error

	adapter *telegram.Adapter
	bcast   *broadcast.Service
	tracker *conversation.Tracker
	router  *router.Router
	ops     *ops.Server
	house   *housekeeper

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm, cfg, err := LoadConfig(cfgPath, true)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := cfg.Telegram.PollTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO")
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	b, err := cfg.Broadcast.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	lock, lockClose, err := newLock(ctx, b, log)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	bcast := newBroadcastService(b, ad, store, lock, bus, log)
	tracker := conversation.NewTracker(conversation.NewGate(cfg.Telegram.AdminUserID), b.AwaitTimeout, nil)
	rt := router.New(router.Deps{
		Adapter:      ad,
		Store:        store,
		Tracker:      tracker,
		Broadcast:    bcast,
		Menu:         menu.Default(),
		Log:          log,
		AwaitTimeout: b.AwaitTimeout,
	})

	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg)
		opsSrv = ops.New(ops.Config{
			Addr:  cfg.Ops.AddrOrDefault(),
			Token: cfg.Ops.Token,
			Pprof: cfg.Ops.Pprof,
		}, ops.Deps{Store: store, Jobs: bcast, Gatherer: reg, Log: log})
	}

	house, err := newHousekeeper(cfg.Housekeeping.SweepOrDefault(), log,
		sweeper{name: "conversations", fn: tracker.Sweep},
		sweeper{name: "jobs", fn: bcast.Prune},
	)
	if err != nil {
		_ = lockClose()
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		lockClose: lockClose,
		adapter:   ad,
		bcast:     bcast,
		tracker:   tracker,
		router:    rt,
		ops:       opsSrv,
		house:     house,
		updates:   make(chan transport.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go0("telegram.menu.update", func(c context.Context) {
		if err := a.router.UpdateMenuCommands(c); err != nil {
			a.log.Warn("bot command menu not updated", logx.Err(err))
		}
	})
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("metrics.observe", func(c context.Context) {
		metrics.Observe(c, a.bus)
	})

	// Log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	if a.ops != nil {
		if err := a.ops.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	a.house.Start()

	// Hot reload: the manager only publishes validated changes.
	changes, unsubscribe := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubscribe()
		for {
			select {
			case <-c.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				a.applyConfig(ch)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies the hot-reloadable part of a change (logging) and warns
// about everything that needs a restart.
func (a *App) applyConfig(ch config.Change) {
	a.logs.Apply(mapLoggingConfig(ch.New))

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	if ch.Restart {
		a.log.Warn("config changed outside logging; restart required for it to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}

// ReloadConfig rereads the config file now, as on SIGHUP.
func (a *App) ReloadConfig() error {
	_, _, err := a.cfgm.Reload()
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("housekeeping", 2*time.Second, a.house.Stop)
	step("ops", time.Second, func(c context.Context) error {
		if a.ops == nil {
			return nil
		}
		return a.ops.Stop(c)
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	// A running job is cancelled; its summary still goes out.
	step("broadcast", 5*time.Second, a.bcast.Close)
	step("lock", time.Second, func(context.Context) error { return a.lockClose() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, router, etc.)
	step("supervisor", 3*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
