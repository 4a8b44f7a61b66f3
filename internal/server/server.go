package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dropwire/dropwire/internal/api/handlers"
	"github.com/dropwire/dropwire/internal/api/middleware"
	"github.com/dropwire/dropwire/internal/library"
	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/metrics"
	"github.com/dropwire/dropwire/internal/monitor"
	"github.com/dropwire/dropwire/internal/server/routes"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/token"
	"github.com/dropwire/dropwire/internal/tunnel"
)

// NewServer creates a new server instance.
func NewServer(store state.Store, manager *tunnel.Manager, mon *monitor.Monitor) (*Server, error) {
	logger := logging.GetGlobalLogger()

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
		logger.Info("Server initializing in PRODUCTION mode")
	} else {
		gin.SetMode(gin.DebugMode)
		logger.Info("Server initializing in DEVELOPMENT mode")
	}

	engine := gin.New()
	engine.SetTrustedProxies([]string{
		"127.0.0.1",
		"::1",
		"172.20.0.0/16",
		"192.168.0.0/16",
		"10.0.0.0/8",
	})

	return &Server{
		router:  engine,
		store:   store,
		manager: manager,
		monitor: mon,
	}, nil
}

// Init wires handlers and routes onto the engine.
func (s *Server) Init(tokens *token.Service, lib *library.Library) error {
	logger := logging.GetGlobalLogger()

	routes.SetupGlobalMiddleware(s.router)

	h := &routes.Handlers{
		Health: handlers.NewHealthHandler(s.store),
		Tunnel: handlers.NewTunnelHandler(s.manager, tokens, lib),
		Admin:  handlers.NewAdminHandler(s.manager, s.monitor, s.store),
	}
	m := &routes.Middleware{
		Validation: middleware.NewValidationMiddleware(),
	}

	routes.Setup(s.router, h, m)

	logger.Info("routes configured")
	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains
// connections and destroys any tunnel still alive, matching the
// shutdown contract.
func (s *Server) Start(cfg *Config) error {
	logger := logging.GetGlobalLogger()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received, draining connections")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error: %v", err)
		}
	}

	s.destroyAllActive(ctx)
	return nil
}

// destroyAllActive tears down every tunnel still in the store on
// shutdown, completed ones included, so published edge routes never
// outlive the process.
func (s *Server) destroyAllActive(ctx context.Context) {
	logger := logging.GetGlobalLogger()
	records, err := s.manager.ListActive(ctx)
	if err != nil {
		logger.Error("shutdown: failed to list active tunnels: %v", err)
		return
	}
	for _, rec := range records {
		if err := s.manager.Terminate(ctx, rec.TunnelID); err != nil {
			logger.Error("shutdown: failed to terminate tunnel_id=%s: %v", rec.TunnelID, err)
		}
	}
	logger.Info(fmt.Sprintf("shutdown: destroyed %d tunnel(s)", len(records)))
}
