package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Limits are fixed at build time; they are not runtime flags.
type Limits struct {
	InitialCredits   int
	ThrottleWindow   time.Duration
	ThrottleMax      int
	TransformTimeout time.Duration
	MaxUploadBytes   int64
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		InitialCredits:   3,
		ThrottleWindow:   60 * time.Second,
		ThrottleMax:      10,
		TransformTimeout: 2 * time.Minute,
		MaxUploadBytes:   20 << 20,
	}
}

type Config struct {
	DatabaseURL         string
	Port                string
	JWTSecret           string
	JWTIssuer           string
	JWTAudience         string
	StorageRoot         string
	StorageBucket       string
	TransformURL        string
	TransformAPIKey     string
	StripeWebhookSecret string
	NatsURL             string
	RedisAddr           string
	CORSOrigins         []string
	Limits              Limits
}

// New loads .env if present, then reads the environment.
// NATS_URL and REDIS_ADDR are optional: when empty the NATS bridge is not
// started and the throttle stays in-process.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                getEnv("PORT", "8080"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTIssuer:           os.Getenv("JWT_ISSUER"),
		JWTAudience:         os.Getenv("JWT_AUDIENCE"),
		StorageRoot:         getEnv("STORAGE_ROOT", "data/uploads"),
		StorageBucket:       getEnv("STORAGE_BUCKET", "ai-painter-app-uploads-2025"),
		TransformURL:        os.Getenv("TRANSFORM_URL"),
		TransformAPIKey:     os.Getenv("TRANSFORM_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		NatsURL:             os.Getenv("NATS_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "https://ai-painter-app.web.app")),
		Limits:              DefaultLimits(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env: DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env: JWT_SECRET")
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
