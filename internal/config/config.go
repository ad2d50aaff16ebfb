package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL   string
	ProctorWSURL string
	BearerToken  string
	LogLevel     string
	LogFormat    string
	JournalPath  string
	// FullscreenGrace is how long fullscreen may stay exited before the
	// attempt is force-submitted.
	FullscreenGrace time.Duration
	// ServerPort, GinMode and JWTSecret are used by the devserver binary.
	ServerPort string
	GinMode    string
	JWTSecret  string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		ProctorWSURL:    getEnv("PROCTOR_WS_URL", ""),
		BearerToken:     getEnv("BEARER_TOKEN", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "pretty"),
		JournalPath:     getEnv("JOURNAL_PATH", "./exstem-journal.db"),
		FullscreenGrace: time.Duration(getEnvInt("FULLSCREEN_GRACE_SECONDS", 10)) * time.Second,
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		JWTSecret:       getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
	}
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
