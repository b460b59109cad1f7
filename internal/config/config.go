package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Azure AI image generation
	AzureAIEndpoint   string
	AzureAIAPIKey     string
	AzureAIUseEntraID bool
	AzureAIDeployment string
	AzureAIAPIVersion string
	ImageSize         string
	ImageQuality      string
	ImageStyle        string
	PollInterval      time.Duration
	PollMaxAttempts   int
	PollTimeout       time.Duration
	SubmitTimeout     time.Duration

	// Supabase
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Credits
	CreditsPerImage int
	RefundOnFailure bool

	// Server
	Port               string
	Environment        string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AzureAIEndpoint:   getEnv("AZURE_AI_ENDPOINT", ""),
		AzureAIAPIKey:     getEnv("AZURE_AI_API_KEY", ""),
		AzureAIUseEntraID: getEnvBool("AZURE_AI_USE_ENTRA_ID", false),
		AzureAIDeployment: getEnv("AZURE_AI_DEPLOYMENT", "DALL-E-3"),
		AzureAIAPIVersion: getEnv("AZURE_AI_API_VERSION", "2024-02-01"),
		ImageSize:         getEnv("IMAGE_SIZE", "1792x1024"),
		ImageQuality:      getEnv("IMAGE_QUALITY", "hd"),
		ImageStyle:        getEnv("IMAGE_STYLE", "vivid"),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PollMaxAttempts:   getEnvInt("POLL_MAX_ATTEMPTS", 20),
		PollTimeout:       getEnvDuration("POLL_TIMEOUT", 10*time.Second),
		SubmitTimeout:     getEnvDuration("SUBMIT_TIMEOUT", 30*time.Second),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CreditsPerImage: getEnvInt("CREDITS_PER_IMAGE", 1),
		RefundOnFailure: getEnvBool("REFUND_ON_FAILURE", true),

		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without. Azure AI
// settings are not checked; a missing provider is reported per request.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.CreditsPerImage < 1 {
		return fmt.Errorf("CREDITS_PER_IMAGE must be at least 1")
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL must not be negative")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("POLL_TIMEOUT must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("SUBMIT_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
