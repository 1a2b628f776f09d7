package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/robinmail/dnsguard/api/handlers"
	"github.com/robinmail/dnsguard/api/middleware"
	"github.com/robinmail/dnsguard/config"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, cfg *config.Config, s *services.Services, repos *repository.Repositories, db *gorm.DB) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, repos)

	// Health and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(db, cfg.MtaConfig))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-DNSGUARD-API-KEY",
		ValidAPIKey: cfg.AppConfig.APIKey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware("dnsguard"))
	api.Use(middleware.TracingMiddleware())
	{
		// Domain endpoints
		domains := api.Group("/domains")
		{
			domains.POST("", apiHandlers.Domains.Register())
			domains.GET("", apiHandlers.Domains.List())
			domains.GET("/:id", apiHandlers.Domains.Get())
			domains.DELETE("/:id", apiHandlers.Domains.Delete())
			domains.PUT("/:id/providers", apiHandlers.Domains.SetProviders())
			domains.POST("/:id/verify", apiHandlers.Domains.Verify())
			domains.GET("/:id/health", apiHandlers.Domains.Health())
			domains.GET("/:id/records", apiHandlers.Domains.Records())

			// DKIM lifecycle per domain
			domains.POST("/:id/dkim", apiHandlers.Dkim.Generate())
			domains.POST("/:id/dkim/rotate", apiHandlers.Dkim.Rotate())
			domains.GET("/:id/dkim", apiHandlers.Dkim.List())

			// MTA-STS per domain
			domains.POST("/:id/mta-sts", apiHandlers.MtaSts.Deploy())
			domains.PUT("/:id/mta-sts/mode", apiHandlers.MtaSts.UpdateMode())
			domains.GET("/:id/mta-sts", apiHandlers.MtaSts.Get())
		}

		// DKIM key endpoints
		dkim := api.Group("/dkim")
		{
			dkim.GET("/:id", apiHandlers.Dkim.Get())
			dkim.POST("/:id/retire", apiHandlers.Dkim.Retire())
			dkim.POST("/:id/republish", apiHandlers.Dkim.Republish())
		}

		// DNS provider endpoints
		providers := api.Group("/providers")
		{
			providers.POST("", apiHandlers.Providers.Create())
			providers.GET("", apiHandlers.Providers.List())
			providers.GET("/:id", apiHandlers.Providers.Get())
			providers.PUT("/:id/credentials", apiHandlers.Providers.UpdateCredentials())
			providers.DELETE("/:id", apiHandlers.Providers.Delete())
		}

		// Pre-onboarding DNS census
		api.GET("/discovery", apiHandlers.Domains.Discover())
	}
}
