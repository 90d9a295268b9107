package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/app"
	iauth "github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/handlers"
	"github.com/charlesng35/shopapp/internal/middleware"
	"github.com/charlesng35/shopapp/internal/monitoring"
	"github.com/charlesng35/shopapp/internal/monitoring/checks"
	"github.com/charlesng35/shopapp/internal/services"
)

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	DB        *gorm.DB
	Codec     *iauth.TokenCodec
	Sessions  *iauth.SessionManager
	Users     *services.UserService
	RateStore middleware.RateStore
	RateLimit app.RateLimitConfig
	// Health defaults to a database-only readiness probe.
	Health *monitoring.Health
}

// NewRouter builds the Gin engine, wires middleware and registers the routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager must be provided")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealth(checks.Database(deps.DB))
	}

	// Health endpoint (public)
	r.GET("/health", handlers.Health(health))

	registerUserRoutes(r.Group("/api"), deps)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
