package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	Port             string
	LogLevel         slog.Level
	BackendURL       string
	BackendSchema    string
	BackendTimeout   time.Duration
	JobPollInterval  time.Duration
	ListPollInterval time.Duration
	CatalogTTL       time.Duration
}

func LoadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logLevelString := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevelString == "" {
		logLevelString = "INFO"
	}
	var logLevel slog.Level
	switch logLevelString {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:9090"
	}
	backendSchema := strings.ToLower(os.Getenv("BACKEND_SCHEMA"))
	if backendSchema == "" {
		backendSchema = "modern"
	}
	return Config{
		Port:             port,
		LogLevel:         logLevel,
		BackendURL:       backendURL,
		BackendSchema:    backendSchema,
		BackendTimeout:   durationEnv("BACKEND_TIMEOUT", 10*time.Second),
		JobPollInterval:  durationEnv("JOB_POLL_INTERVAL", 3*time.Second),
		ListPollInterval: durationEnv("LIST_POLL_INTERVAL", 5*time.Second),
		CatalogTTL:       durationEnv("FORMAT_CACHE_TTL", 5*time.Minute),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration in env, using default", "key", key, "value", raw)
		return fallback
	}
	return d
}
