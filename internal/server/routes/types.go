package routes

import (
	"github.com/dropwire/dropwire/internal/api/handlers"
	"github.com/dropwire/dropwire/internal/api/middleware"
)

// Handlers contains all the route handlers
type Handlers struct {
	Health *handlers.HealthHandler
	Tunnel *handlers.TunnelHandler
	Admin  *handlers.AdminHandler
}

// Middleware contains all the middleware
type Middleware struct {
	Validation *middleware.ValidationMiddleware
}
