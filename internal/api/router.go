package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelrealty/backoffice/internal/app"
	iauth "github.com/kestrelrealty/backoffice/internal/auth"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/handlers"
	"github.com/kestrelrealty/backoffice/internal/middleware"
	"github.com/kestrelrealty/backoffice/internal/realtime"
	"github.com/kestrelrealty/backoffice/internal/services"
)

// Services bundles the wired service layer the router exposes.
type Services struct {
	Feed   *services.FeedService
	Ack    *services.AckService
	Entity *services.EntityService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(svc Services, registry *entities.Registry, hub *realtime.Hub, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if svc.Feed == nil || svc.Ack == nil || svc.Entity == nil {
		return nil, fmt.Errorf("all services must be provided")
	}
	if registry == nil {
		return nil, fmt.Errorf("entity registry must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}

	// Metrics endpoint (public, scrapers do not carry staff tokens)
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	notificationHandler := handlers.NewNotificationHandler(svc.Feed, svc.Ack, registry, hub, jwt)
	entityHandler := handlers.NewEntityHandler(svc.Entity, registry)

	// The stream endpoint authenticates via query token inside the handler,
	// so it sits outside the Auth middleware group.
	if cfg.Features.Realtime.Enabled && hub != nil {
		r.GET("/api/notifications/stream", notificationHandler.Stream)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.Feed)
		notifications.GET("/counts", notificationHandler.Counts)
		notifications.POST("/ack", notificationHandler.Acknowledge)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:type/:id/read", notificationHandler.MarkRead)
		notifications.POST("/:type/:id/unread", notificationHandler.MarkUnread)
	}

	entityRoutes := api.Group("/entities")
	{
		entityRoutes.POST("/:type/status", entityHandler.Transition)
		entityRoutes.GET("/:type/stats", entityHandler.Stats)
	}

	return r, nil
}
