// @title           ImageForge API
// @version         1.0.0
// @description     Credit-metered AI image generation. Generates images from text prompts with Azure OpenAI, stores them per user and reports credit balances.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"imageforge-backend/internal/azureai"
	"imageforge-backend/internal/config"
	"imageforge-backend/internal/database"
	"imageforge-backend/internal/generation"
	"imageforge-backend/internal/handlers"
	"imageforge-backend/internal/identity"
	applog "imageforge-backend/internal/log"
	"imageforge-backend/internal/middleware"
	"imageforge-backend/internal/supabase"
)

// afterJobBudget covers mirroring, persistence and refund retries once the
// provider job has finished.
const afterJobBudget = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := applog.New(os.Getenv("ENVIRONMENT"))
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := applog.New(cfg.Environment)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbClient.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	if err := database.NewMigrator(dbClient.DB(), logger).Run(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	cancelMigrate()
	logger.Info().Msg("migrations completed")

	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize credential verifier")
	}

	jobs, err := newJobClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize image provider")
	}
	if !jobs.Configured() {
		logger.Warn().Msg("AZURE_AI_ENDPOINT or credentials not set; generation requests will fail without charging credits")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	opts := generation.Options{
		CreditsPerImage: cfg.CreditsPerImage,
		RefundOnFailure: cfg.RefundOnFailure,
		Publisher:       supabase.NewRealtimeClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey),
		Limiter:         limiter,
		Logger:          logger,
	}
	if cfg.SupabaseStorageBucket != "" {
		storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseStorageBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize storage client")
		}
		opts.Mirror = storageClient
	}
	service := generation.NewService(verifier, dbClient, jobs, dbClient, opts)

	router := handlers.NewRouter(handlers.RouterConfig{
		Generator:          service,
		Images:             dbClient,
		Credits:            dbClient,
		DB:                 dbClient,
		Verifier:           verifier,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	// A generation request holds its connection for the whole provider job,
	// then mirrors, persists and possibly refunds.
	requestBudget := jobs.MaxDuration() + afterJobBudget
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestBudget,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, srv, requestBudget)
}

func newVerifier(cfg *config.Config, logger zerolog.Logger) (identity.Verifier, error) {
	if cfg.SupabaseJWTSecret != "" {
		logger.Info().Msg("verifying credentials locally with the project JWT secret")
		return identity.NewJWTVerifier(cfg.SupabaseJWTSecret), nil
	}

	client, err := supabase.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("verifying credentials with Supabase Auth")
	return identity.NewGoTrueVerifier(client.Supabase.Auth), nil
}

func newJobClient(cfg *config.Config, logger zerolog.Logger) (*azureai.Client, error) {
	providerCfg := azureai.Config{
		Endpoint:      cfg.AzureAIEndpoint,
		APIKey:        cfg.AzureAIAPIKey,
		Deployment:    cfg.AzureAIDeployment,
		APIVersion:    cfg.AzureAIAPIVersion,
		Size:          cfg.ImageSize,
		Quality:       cfg.ImageQuality,
		Style:         cfg.ImageStyle,
		PollInterval:  cfg.PollInterval,
		MaxAttempts:   cfg.PollMaxAttempts,
		PollTimeout:   cfg.PollTimeout,
		SubmitTimeout: cfg.SubmitTimeout,
		Logger:        &logger,
	}
	if cfg.AzureAIUseEntraID {
		cred, err := azureai.NewDefaultCredential()
		if err != nil {
			return nil, err
		}
		providerCfg.Credential = cred
	}
	return azureai.NewClient(providerCfg), nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, then drains in-flight
// requests for up to grace before closing.
func waitForShutdown(logger zerolog.Logger, srv *http.Server, grace time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = srv.Close()
	}
	logger.Info().Msg("server stopped")
}
