package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	ServerPort  string
	FrontendURL string
	EnableHSTS  bool

	DatabaseURL string
	RedisURL    string
	RabbitMQURL string

	RetrievalURL     string
	RetrievalTimeout time.Duration

	OpenAIKey string
	AIModel   string
	AIBaseURL string

	JWKSURL   string
	JWTIssuer string

	SessionTTL         time.Duration
	SessionMaxMessages int
	SessionMaxEntities int

	MaxQueryChars int

	MinuteBase      int
	MinuteBurst     int
	HourCapacity    int
	IPRate          string
	FallbackTimeout time.Duration

	FallbackThreshold float64
	ContinuityBonus   float64
	EntityBonus       float64
	ComplexWordCount  int

	ServerDebugMode bool
	WorkerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string

	SweepInterval    time.Duration
	RabbitMQPrefetch int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:  getEnvBool("ENABLE_HSTS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		RetrievalURL:     getEnv("RETRIEVAL_URL", ""),
		RetrievalTimeout: getEnvDuration("RETRIEVAL_TIMEOUT", 10*time.Second),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", ""),
		AIBaseURL: getEnv("AI_BASE_URL", ""),

		JWKSURL:   getEnv("JWKS_URL", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		SessionTTL:         getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionMaxMessages: getEnvInt("SESSION_MAX_MESSAGES", 10),
		SessionMaxEntities: getEnvInt("SESSION_MAX_ENTITIES", 20),

		MaxQueryChars: getEnvInt("MAX_QUERY_CHARS", 2000),

		MinuteBase:      getEnvInt("RATE_MINUTE_BASE", 60),
		MinuteBurst:     getEnvInt("RATE_MINUTE_BURST", 10),
		HourCapacity:    getEnvInt("RATE_HOUR_CAPACITY", 1000),
		IPRate:          getEnv("IP_RATE_LIMIT", "20-S"),
		FallbackTimeout: getEnvDuration("FALLBACK_TIMEOUT", 15*time.Second),

		FallbackThreshold: getEnvFloat("CLASSIFIER_FALLBACK_THRESHOLD", 0.7),
		ContinuityBonus:   getEnvFloat("CLASSIFIER_CONTINUITY_BONUS", 0.1),
		EntityBonus:       getEnvFloat("CLASSIFIER_ENTITY_BONUS", 0.2),
		ComplexWordCount:  getEnvInt("CLASSIFIER_COMPLEX_WORDS", 25),

		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 1*time.Minute),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RetrievalURL == "" {
		return nil, fmt.Errorf("RETRIEVAL_URL is required (data retrieval collaborator)")
	}
	if cfg.FallbackThreshold < 0 || cfg.FallbackThreshold > 1 {
		return nil, fmt.Errorf("CLASSIFIER_FALLBACK_THRESHOLD must be in [0,1], got %v", cfg.FallbackThreshold)
	}
	if cfg.MinuteBase <= 0 || cfg.HourCapacity <= 0 {
		return nil, fmt.Errorf("rate limit capacities must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
