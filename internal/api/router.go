package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/handlers"
	"github.com/pagefeedhq/pagefeed/internal/middleware"
	"github.com/pagefeedhq/pagefeed/internal/services"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
)

// Deps bundles the constructed services the router wires together.
type Deps struct {
	DB         *gorm.DB
	Tokens     *iauth.SessionTokenService
	Tenants    *tenant.Service
	MagicLinks *services.MagicLinkService
	Resolver   *tenant.Resolver
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
// The tenant-scoped site routes live under the internal rewrite namespace
// and are only reachable through the edge rewrite filter.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("session token service must be provided")
	}
	if deps.Tenants == nil {
		return nil, fmt.Errorf("tenant service must be provided")
	}
	if deps.MagicLinks == nil {
		return nil, fmt.Errorf("magic link service must be provided")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("tenant resolver must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.MagicLinks, deps.Tokens, deps.Resolver)
	pageHandler := handlers.NewPageHandler(deps.DB, deps.Tenants, deps.Tokens)

	auth := r.Group("/api/auth")
	// Issuance has its own per-email cooldown; this guards the endpoint itself.
	auth.Use(middleware.RateLimit(30, time.Minute))
	{
		auth.POST("/request-magic-link", authHandler.RequestMagicLink)
		auth.POST("/verify-magic-link", authHandler.VerifyMagicLink)
		auth.GET("/me", authHandler.Me)
		auth.POST("/logout", authHandler.Logout)
	}

	r.POST("/api/pages/:site/views", pageHandler.TrackView)

	sites := r.Group(tenant.InternalPrefix)
	{
		sites.GET("/:site/*rest", pageHandler.Show)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
