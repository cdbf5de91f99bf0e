// Package server hosts the admin HTTP boundary: feed management, article
// listings, and runtime settings.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	mw "github.com/DjordjeVuckovic/news-ingest/pkg/middleware"
	pkgserver "github.com/DjordjeVuckovic/news-ingest/pkg/server"
)

const gracefulShutdownTimeout = 10 * time.Second

type Server struct {
	Echo *echo.Echo

	cfg    *Config
	health pkgserver.HealthChecker
}

func NewServer(e *echo.Echo, cfg *Config, health pkgserver.HealthChecker, emitter apperr.EventEmitter) *Server {
	s := &Server{
		Echo:   e,
		cfg:    cfg,
		health: health,
	}

	e.HideBanner = true
	e.HTTPErrorHandler = apperr.GlobalErrorHandler(emitter)
	s.setupMiddlewares()
	s.bindHealth()

	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(mw.Logger())
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CorsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
	}))
}

func (s *Server) bindHealth() {
	s.Echo.GET("/healthz", func(c echo.Context) error {
		if !s.health.Healthy(c.Request().Context()) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Echo.Start(":" + s.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	return s.Echo.Shutdown(shutdownCtx)
}
