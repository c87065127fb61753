package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medviewer/hanging-protocols/internal/cache"
	"github.com/medviewer/hanging-protocols/internal/config"
	"github.com/medviewer/hanging-protocols/internal/database"
	"github.com/medviewer/hanging-protocols/internal/handlers"
	"github.com/medviewer/hanging-protocols/internal/middleware"
	"github.com/medviewer/hanging-protocols/internal/repository"
	"github.com/medviewer/hanging-protocols/internal/services"
	"github.com/medviewer/hanging-protocols/pkg/hp"
	"github.com/medviewer/hanging-protocols/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting Hanging Protocol Service")

	// Connect to database
	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}

	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}

	// Initialize repositories
	protocolRepo := repository.NewProtocolRepository()
	auditRepo := repository.NewAuditRepository()

	// Initialize the matching engine. Deployment-specific custom attribute
	// resolvers would be registered on the resolver here.
	resolver := hp.NewResolver()
	engine := hp.NewEngine(resolver, log.Logger)

	// Initialize services
	protocolService := services.NewProtocolService(protocolRepo, auditRepo, cacheImpl, cfg.Cache.TTL)
	hangingService := services.NewHangingService(protocolService, engine)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	protocolHandler := handlers.NewProtocolHandler(protocolService)
	hangHandler := handlers.NewHangHandler(hangingService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Protocol management and matching API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantID)
		r.Use(middleware.UserID)

		// Protocol library management
		r.Post("/protocols", protocolHandler.CreateProtocol)
		r.Get("/protocols", protocolHandler.GetProtocols)
		r.Get("/protocols/{id}", protocolHandler.GetProtocol)
		r.Put("/protocols/{id}", protocolHandler.UpdateProtocol)
		r.Delete("/protocols/{id}", protocolHandler.DeleteProtocol)
		r.Post("/protocols/{id}/clone", protocolHandler.CloneProtocol)

		// Matching pass
		r.Post("/hang", hangHandler.Hang)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
