package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"castbot/pkg/logx"
)

// BreakerConfig controls the circuit breaker in front of a Store.
type BreakerConfig struct {
	// Failures is the number of consecutive outages that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before one trial call is allowed.
	Cooldown time.Duration
}

// breakerStore fails fast with ErrUnavailable while the database is down, so
// the router does not stall every update on connect timeouts.
type breakerStore struct {
	Store
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps st with a circuit breaker. Only ErrUnavailable failures
// count against the circuit.
func WithBreaker(st Store, cfg BreakerConfig, log logx.Logger) Store {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logx.String("comp", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
	return &breakerStore{Store: st, cb: cb}
}

func (b *breakerStore) run(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &OpError{Op: op, Err: err}
	}
	return err
}

func (b *breakerStore) Upsert(ctx context.Context, p Profile) error {
	return b.run("upsert", func() error { return b.Store.Upsert(ctx, p) })
}

func (b *breakerStore) ListSubscribed(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := b.run("list", func() error {
		var err error
		ids, err = b.Store.ListSubscribed(ctx)
		return err
	})
	return ids, err
}

func (b *breakerStore) MarkUnsubscribed(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := b.run("unsubscribe", func() error {
		var err error
		changed, err = b.Store.MarkUnsubscribed(ctx, id)
		return err
	})
	return changed, err
}

func (b *breakerStore) Get(ctx context.Context, id int64) (Subscriber, bool, error) {
	var (
		sub Subscriber
		ok  bool
	)
	err := b.run("get", func() error {
		var err error
		sub, ok, err = b.Store.Get(ctx, id)
		return err
	})
	return sub, ok, err
}

func (b *breakerStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := b.run("stats", func() error {
		var err error
		st, err = b.Store.Stats(ctx)
		return err
	})
	return st, err
}
