package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/policy-assistant/internal/aiclient"
	"github.com/Rrens/policy-assistant/internal/api"
	customMiddleware "github.com/Rrens/policy-assistant/internal/api/middleware"
	"github.com/Rrens/policy-assistant/internal/config"
	"github.com/Rrens/policy-assistant/internal/logger"
	"github.com/Rrens/policy-assistant/internal/repository/redis"
	"github.com/Rrens/policy-assistant/internal/repository/uploads"
	"github.com/Rrens/policy-assistant/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := false
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		fmt.Println("Warning: .env file not found in any standard location")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("ai_base_url", cfg.AI.BaseURL).
		Dur("session_ttl", cfg.Session.TTL).
		Msg("Starting Policy Assistant gateway")

	// Initialize Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	sessionStore := redis.NewSessionStore(redisClient, cfg.Session.TTL, cfg.Session.KeyPrefix)

	// Initialize upload storage
	uploadStore, err := uploads.NewStore(cfg.Upload.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("Failed to prepare upload directory")
	}

	aiClient := aiclient.NewClient(cfg.AI.BaseURL, cfg.AI.Timeout)

	gateway := service.NewGatewayService(sessionStore, uploadStore, aiClient, service.GatewayOptions{
		TopK:         cfg.AI.TopK,
		Threshold:    cfg.AI.Threshold,
		MaxDocuments: cfg.Upload.MaxDocuments,
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	gateway.StartUploadSweeper(sweepCtx, cfg.Upload.SweepInterval, cfg.Upload.MaxAge)

	var rateLimiter customMiddleware.RateLimiter
	if cfg.Security.RateLimit.Enabled {
		rateLimiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	}

	// Initialize router
	router := api.NewRouter(cfg, gateway, rateLimiter)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
