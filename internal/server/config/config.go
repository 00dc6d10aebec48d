package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds hub server configuration loaded from environment.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTSecret       string
	MaxConnsPerIP   int
	MaxLoginsPerMin int
}

// Load parses environment variables into a Config struct.
func Load() (Config, error) {
	cfg := Config{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:       strings.TrimSpace(os.Getenv("JWT_SECRET")),
		MaxConnsPerIP:   parseIntWithDefault(os.Getenv("MAX_CONNECTIONS_PER_IP"), 10),
		MaxLoginsPerMin: parseIntWithDefault(os.Getenv("LOGIN_ATTEMPTS_PER_MIN"), 5),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntWithDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
