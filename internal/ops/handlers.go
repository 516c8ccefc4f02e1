package ops

import (
	"context"
	"fmt"
	"net/http"
	hpprof "net/http/pprof"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 3 * time.Second

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
}

func (s *Server) registerMetricsRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) registerJobRoutes() {
	g := s.echo.Group("/api/broadcasts")
	g.GET("/last", s.handleLastJob)
	g.GET("/:id", s.handleJob)
}

func (s *Server) registerPprofRoutes() {
	g := s.echo.Group("/debug/pprof")
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.POST("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
	// Index serves the named profiles (heap, goroutine, ...) by path suffix.
	g.GET("/*", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.deps.Store == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":       "unhealthy",
			"failed_check": "storage",
			"error":        err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJob(c echo.Context) error {
	if s.deps.Jobs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	id := c.Param("id")
	st, ok := s.deps.Jobs.Status(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %q not found", id))
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleLastJob(c echo.Context) error {
	if s.deps.Jobs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no broadcasts yet")
	}
	st, ok := s.deps.Jobs.Last()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no broadcasts yet")
	}
	return c.JSON(http.StatusOK, st)
}
