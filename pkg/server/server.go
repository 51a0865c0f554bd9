// Package server exposes token administration and diagnostics over HTTP:
// per-company token status, forced refresh, out-of-band token seeding, and
// a liveness endpoint that reports durable-tier reachability.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hypervisual/banklink/pkg/store"
	"github.com/hypervisual/banklink/pkg/token"
)

// defaultCompany mirrors the original deployment, which served a single
// primary tenant unless the request named another.
const defaultCompany = "HYPERVISUAL"

// Server is the HTTP surface over the token manager.
type Server struct {
	echo    *echo.Echo
	tokens  *token.Manager
	durable store.Pinger
}

// New creates a Server. durable may be nil when no durable tier is
// configured; the health endpoint then reports the tier as disabled.
func New(tokens *token.Manager, durable store.Pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, tokens: tokens, durable: durable}

	e.GET("/health", s.health)

	api := e.Group("/api/revolut")
	api.GET("/token-status", s.tokenStatus)
	api.GET("/token-status/all", s.allTokenStatuses)
	api.POST("/refresh", s.forceRefresh)
	api.POST("/token", s.storeToken)

	return s
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("http server listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	})
}
