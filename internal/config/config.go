package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ML models
	ModelDir       string
	ORTLibraryPath string
	InferTimeout   time.Duration

	// Broadcast hub
	HubEventBuffer   int
	SubscriberBuffer int

	// Live state cache
	StateChannelSize int
	StateTTL         time.Duration

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8000"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "fleet_user"),
		DBPassword:          getEnv("DB_PASSWORD", "fleet_password"),
		DBName:              getEnv("DB_NAME", "fleet_backend"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		ModelDir:            getEnv("MODEL_DIR", "models"),
		ORTLibraryPath:      getEnv("ORT_LIBRARY_PATH", ""),
		InferTimeout:        time.Duration(getEnvInt("ML_INFER_TIMEOUT_MS", 2000)) * time.Millisecond,
		HubEventBuffer:      getEnvInt("HUB_EVENT_BUFFER", 1024),
		SubscriberBuffer:    getEnvInt("SUBSCRIBER_BUFFER", 64),
		StateChannelSize:    getEnvInt("STATE_CHANNEL_SIZE", 10000),
		StateTTL:            time.Duration(getEnvInt("STATE_TTL_SECONDS", 30)) * time.Second,
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:        splitKeys(getEnv("VALID_API_KEYS", "")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
	}
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
