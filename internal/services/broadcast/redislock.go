package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"castbot/pkg/logx"
)

const (
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
	renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`
)

// RedisOptions configures the shared lock.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, opt RedisOptions) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// redisLock is held as key=token with a TTL. While held it is renewed every
// ttl/3 so a long broadcast keeps it; a crashed holder loses it after ttl.
type redisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logx.Logger
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration, log logx.Logger) Lock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &redisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log.With(logx.String("comp", "broadcast.lock"), logx.String("key", key)),
	}
}

func (l *redisLock) TryAcquire(ctx context.Context) (func(), error) {
	token := ulid.Make().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire broadcast lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.client.Eval(rctx, releaseScript, []string{l.key}, token).Err(); err != nil {
				l.log.Warn("release broadcast lock failed", logx.Err(err))
			}
		})
	}, nil
}

func (l *redisLock) renew(token string, stop <-chan struct{}) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := l.client.Eval(ctx, renewScript, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.log.Warn("renew broadcast lock failed", logx.Err(err))
				continue
			}
			if n == 0 {
				l.log.Error("broadcast lock lost")
				return
			}
		}
	}
}
