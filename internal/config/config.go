// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	OptimizerURL     string
	OptimizerTimeout time.Duration
	CORSOrigins      []string
	LogLevel         string
	LogFormat        string
}

// Load reads the environment. Outside production a .env file in the working
// directory is loaded first; variables already set take precedence.
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	timeout, err := time.ParseDuration(getEnv("OPTIMIZER_TIMEOUT", "120s"))
	if err != nil {
		return Config{}, fmt.Errorf("OPTIMIZER_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("OPTIMIZER_TIMEOUT must be positive, got %s", timeout)
	}

	return Config{
		Addr:             getEnv("PARETODESK_ADDR", ":8080"),
		OptimizerURL:     getEnv("OPTIMIZER_API_BASE", "http://localhost:5000"),
		OptimizerTimeout: timeout,
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}, nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
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
