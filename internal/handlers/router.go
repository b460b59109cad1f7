package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"imageforge-backend/internal/identity"
	"imageforge-backend/internal/metrics"
	"imageforge-backend/internal/middleware"
)

type RouterConfig struct {
	Generator Generator
	Images    ImageLister
	Credits   BalanceReader
	DB        Pinger
	Verifier  identity.Verifier
	Logger    zerolog.Logger

	CORSAllowedOrigins []string
	// RateLimiter is shared with the generation service; when nil one is
	// built from RateLimitPerMinute.
	RateLimiter        *middleware.RateLimiter
	RateLimitPerMinute int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(cfg.Logger),
		middleware.Logger(cfg.Logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
		metrics.Middleware(),
	)

	healthHandler := NewHealthHandler(cfg.DB)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	}
	api := router.Group("/api/v1")

	// Generation authenticates and rate limits inside the service, so a bad
	// credential is always a 401.
	generateHandler := NewGenerateHandler(cfg.Generator)
	api.POST("/images/generate", generateHandler.GenerateImage)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.Verifier), limiter.Handler())

	imagesHandler := NewImagesHandler(cfg.Images)
	authed.GET("/images", imagesHandler.ListImages)

	creditsHandler := NewCreditsHandler(cfg.Credits)
	authed.GET("/credits", creditsHandler.GetCredits)

	return router
}
