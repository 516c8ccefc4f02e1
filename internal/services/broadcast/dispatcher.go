package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"castbot/internal/eventbus"
	"castbot/internal/transport"
	"castbot/pkg/logx"
)

// TextParseMode is the Telegram parse mode for broadcast text. The admin writes
// HTML markup; invalid markup is rejected per recipient as a transient failure.
const TextParseMode = "HTML"

type DispatcherConfig struct {
	RatePerSec  float64
	Burst       int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher fans one text out to a recipient snapshot.
type Dispatcher struct {
	cfg     DispatcherConfig
	sender  transport.Sender
	store   Unsubscriber
	limiter *rate.Limiter
	bus     eventbus.Bus
	log     logx.Logger
}

func NewDispatcher(cfg DispatcherConfig, sender transport.Sender, store Unsubscriber, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		cfg:     cfg,
		sender:  sender,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		bus:     bus,
		log:     log.With(logx.String("comp", "broadcast.dispatcher")),
	}
}

type dispatchOptions struct {
	jobID    string
	progress func(id int64, o Outcome)
}

type DispatchOption func(*dispatchOptions)

// WithJobID tags log lines and events with the job id.
func WithJobID(id string) DispatchOption {
	return func(o *dispatchOptions) { o.jobID = id }
}

// WithProgress is called once per attempted recipient, from worker goroutines.
func WithProgress(fn func(id int64, o Outcome)) DispatchOption {
	return func(o *dispatchOptions) { o.progress = fn }
}

// Dispatch sends text to every id in targets, in order. Cancelling ctx stops
// issuing new sends; sends already issued finish and the rest are Skipped.
// The only error is ErrNoRecipients for an empty snapshot.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, targets []int64, opts ...DispatchOption) (Result, error) {
	var o dispatchOptions
	for _, fn := range opts {
		fn(&o)
	}
	res := Result{Outcomes: make(map[int64]Outcome, len(targets))}
	if len(targets) == 0 {
		return res, ErrNoRecipients
	}
	start := time.Now()
	log := d.log
	if o.jobID != "" {
		log = log.With(logx.String("job", o.jobID))
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	queue := make(chan int64)
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				out := d.deliver(ctx, log, o.jobID, id, text)
				mu.Lock()
				res.Outcomes[id] = out
				mu.Unlock()
				if o.progress != nil {
					o.progress(id, out)
				}
			}
		}()
	}

issue:
	for _, id := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case queue <- id:
		case <-ctx.Done():
			break issue
		}
	}
	close(queue)
	wg.Wait()

	for _, id := range targets {
		out, ok := res.Outcomes[id]
		if !ok {
			res.Outcomes[id] = Skipped
		}
		res.add(out)
	}
	res.Took = time.Since(start)

	fields := []logx.Field{
		logx.Int("total", len(targets)),
		logx.Int("delivered", res.Delivered),
		logx.Int("unreachable", res.Unreachable),
		logx.Int("transient", res.Transient),
		logx.Int("skipped", res.Skipped),
		logx.Duration("took", res.Took),
	}
	if res.Transient > 0 || res.Skipped > 0 {
		log.Warn("dispatch finished with failures", fields...)
	} else {
		log.Info("dispatch finished", fields...)
	}
	return res, nil
}

// deliver attempts one send. The send outlives ctx cancellation so an issued
// message is never cut off half way; SendTimeout bounds it instead.
func (d *Dispatcher) deliver(ctx context.Context, log logx.Logger, jobID string, id int64, text string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in broadcast send", logx.Int64("chat_id", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out = Transient
		}
	}()

	sctx, cancel := d.sendContext(ctx)
	_, err := d.sender.SendText(sctx, transport.ChatTarget{ChatID: id}, text, &transport.SendOptions{
		ParseMode:      TextParseMode,
		DisablePreview: true,
	})
	cancel()
	if err == nil {
		return Delivered
	}
	if !errors.Is(err, transport.ErrRecipientUnreachable) {
		log.Warn("broadcast send failed", logx.Int64("chat_id", id), logx.Err(err))
		return Transient
	}

	log.Info("recipient unreachable; unsubscribing", logx.Int64("chat_id", id), logx.Err(err))
	uctx, cancel := d.sendContext(ctx)
	changed, uerr := d.store.MarkUnsubscribed(uctx, id)
	cancel()
	if uerr != nil {
		log.Error("unsubscribe failed", logx.Int64("chat_id", id), logx.Err(uerr))
	} else if changed && d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.SubscriberUnsubscribe,
			Data: eventbus.Unsubscribed{ChatID: id, JobID: jobID},
		})
	}
	return Unreachable
}

func (d *Dispatcher) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if d.cfg.SendTimeout > 0 {
		return context.WithTimeout(base, d.cfg.SendTimeout)
	}
	return context.WithCancel(base)
}
