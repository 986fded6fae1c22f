package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/app"
	iauth "github.com/mhalloran/curbshare/internal/auth"
	"github.com/mhalloran/curbshare/internal/handlers"
	"github.com/mhalloran/curbshare/internal/middleware"
	"github.com/mhalloran/curbshare/internal/services"
	"github.com/mhalloran/curbshare/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware, constructs the service
// layer, and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config, jwt *iauth.JWTService, sessions *iauth.SessionService, mailer mail.Mailer) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}

	limitService, err := services.NewLimitService(db, cfg.Limits.ServiceLimits())
	if err != nil {
		return nil, err
	}
	userService, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	groupService, err := services.NewGroupService(db, limitService)
	if err != nil {
		return nil, err
	}
	requestService, err := services.NewRequestService(db, limitService)
	if err != nil {
		return nil, err
	}
	inviteService, err := services.NewInviteService(db, mailer, limitService,
		services.WithInviteBaseURL(cfg.Invites.BaseURL))
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	if cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))
	}

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/healthz", handlers.Health())
	}

	authHandler := handlers.NewAuthHandler(userService, sessions)
	groupHandler := handlers.NewGroupHandler(groupService)
	requestHandler := handlers.NewRequestHandler(requestService)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	usageHandler := handlers.NewUsageHandler(limitService)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Invite inspection is public so a recipient can see what they were
	// invited to before registering.
	r.GET("/api/invites/info", inviteHandler.Info)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/profile", authHandler.Me)
	api.PATCH("/profile", authHandler.UpdateProfile)
	api.GET("/usage", usageHandler.Get)

	groups := api.Group("/groups")
	{
		groups.POST("", groupHandler.Create)
		groups.GET("", groupHandler.List)
		groups.GET("/:id", groupHandler.Get)
		groups.GET("/:id/members", groupHandler.ListMembers)
		groups.POST("/:id/leave", groupHandler.Leave)
		groups.DELETE("/:id/members/:userID", groupHandler.RemoveMember)

		groups.GET("/:id/requests", requestHandler.ListByGroup)

		groups.POST("/:id/invites", inviteHandler.Create)
		groups.GET("/:id/invites", inviteHandler.ListOpen)
	}

	requests := api.Group("/requests")
	{
		requests.POST("", requestHandler.Create)
		requests.GET("", requestHandler.ListMine)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/claim", requestHandler.Claim)
		requests.POST("/:id/unclaim", requestHandler.Unclaim)
		requests.POST("/:id/fulfill", requestHandler.Fulfill)
		requests.DELETE("/:id", requestHandler.Delete)
	}

	api.POST("/invites/accept", inviteHandler.Accept)

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
