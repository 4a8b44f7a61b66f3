package server

import (
	"github.com/dropwire/dropwire/internal/monitor"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/tunnel"

	"github.com/gin-gonic/gin"
)

// Server wires the Control API's gin engine to the tunnel lifecycle
// engine's core components.
type Server struct {
	router  *gin.Engine
	store   state.Store
	manager *tunnel.Manager
	monitor *monitor.Monitor
}

// Config holds the HTTP server's own configuration, separate from the
// lifecycle engine's.
type Config struct {
	Port        string
	MetricsAddr string
}
