package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/handler"
	botmw "vip-access-bot/internal/middleware"
)

type Server struct {
	echo          *echo.Echo
	healthHandler *handler.HealthHandler
}

func NewServer(log zerolog.Logger, healthHandler *handler.HealthHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(botmw.RequestLogger(log))
	e.Use(middleware.Recover())

	s := &Server{
		echo:          e,
		healthHandler: healthHandler,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/", s.healthHandler.Health)
	s.echo.GET("/health", s.healthHandler.Health)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
