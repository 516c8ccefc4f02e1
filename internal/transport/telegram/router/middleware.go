package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"castbot/internal/menu"
	"castbot/internal/metrics"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.From.ID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				// Keep INFO useful: short successful requests go to DEBUG.
				if d >= 750*time.Millisecond {
					logger.Info("request ok", fields...)
				} else {
					logger.Debug("request ok", fields...)
				}
			}
			return err
		}
	}
}

// MWRegister upserts the sender before the handler runs. When the store is
// unreachable the user is told so and the handler is skipped.
func MWRegister(store storage.Store) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if store == nil || req.From.ID == 0 {
				return next(ctx, req)
			}
			err := store.Upsert(ctx, profileOf(req))
			switch {
			case err == nil:
				metrics.Registrations.WithLabelValues("ok").Inc()
			case errors.Is(err, storage.ErrUnavailable):
				metrics.Registrations.WithLabelValues("unavailable").Inc()
				req.Reply(ctx, menu.TextUnavailable)
				return err
			default:
				metrics.Registrations.WithLabelValues("error").Inc()
				req.Logger.Warn("register subscriber failed", logx.Err(err))
			}
			return next(ctx, req)
		}
	}
}

func profileOf(req *Request) storage.Profile {
	p := req.From
	return storage.Profile{
		ID:          p.ID,
		DisplayName: strings.TrimSpace(p.FirstName + " " + p.LastName),
		Handle:      p.Username,
		Locale:      p.LanguageCode,
	}
}
