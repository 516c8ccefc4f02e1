// Package ops serves the operator HTTP endpoints: health, Prometheus metrics,
// pprof and broadcast job status.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"castbot/internal/runtime/supervisor"
	"castbot/internal/services/broadcast"
	"castbot/pkg/logx"
)

const defaultAddr = "127.0.0.1:9090"

// ErrInsecureBind is returned by Start for a non-loopback address without a token.
var ErrInsecureBind = errors.New("ops: non-loopback addr requires a token")

// Config controls the ops server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback Addr requires Token.
type Config struct {
	Addr  string
	Token string
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Jobs interface {
	Status(id string) (broadcast.JobStatus, bool)
	Last() (broadcast.JobStatus, bool)
}

type Deps struct {
	Store    Pinger
	Jobs     Jobs
	Gatherer prometheus.Gatherer
	Log      logx.Logger
}

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	echo *echo.Echo

	mu  sync.Mutex
	ln  net.Listener
	sup *supervisor.Supervisor
}

func New(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultAddr
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "ops")), echo: e}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) registerRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logx.Field{
				logx.String("method", v.Method),
				logx.String("uri", v.URI),
				logx.Int("status", v.Status),
				logx.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				s.log.Warn("ops request failed", append(fields, logx.Err(v.Error))...)
				return nil
			}
			s.log.Debug("ops request", fields...)
			return nil
		},
	}))
	s.echo.Use(bearerAuth(s.cfg.Token))

	s.registerHealthRoutes()
	s.registerMetricsRoutes()
	s.registerJobRoutes()
	if s.cfg.Pprof {
		s.registerPprofRoutes()
	}
}

// Start binds the listener and serves in the background under a supervisor.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return fmt.Errorf("%w: %s", ErrInsecureBind, addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ops listen %s: %w", addr, err)
	}
	s.ln = ln
	s.echo.Listener = ln
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		// ops is optional; never take the bot down with it.
		supervisor.WithCancelOnError(false),
	)
	s.sup.Go("ops.http", func(c context.Context) error {
		err := s.echo.Start("")
		if err == nil || errors.Is(err, http.ErrServerClosed) || c.Err() != nil {
			return nil
		}
		return err
	})
	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
		logx.Bool("pprof", s.cfg.Pprof),
	)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := s.echo.Shutdown(ctx)
	sup.Cancel()
	_ = sup.Wait(ctx)

	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()
	s.log.Info("ops server stopped")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops shutdown: %w", err)
	}
	return nil
}

func isLoopbackAddr(addr string) bool {
	// addr is expected in host:port (host may be empty).
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
