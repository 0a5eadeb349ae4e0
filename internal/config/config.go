package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all API configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// JWT
	JWTSecret string

	// Background Workers
	WorkerCount          int
	SagaRecoveryInterval time.Duration
	OverdueScanInterval  time.Duration

	// Sales
	InvoiceRetryAttempts int

	// CORS
	AllowedOrigins []string

	// Sync endpoints, requests per second per owner
	SyncRateLimit float64
	SyncBurst     int

	// Redis (optional, customer summary cache)
	RedisURL string

	// Sentry
	SentryDSN string
}

// TerminalConfig holds the point-of-sale terminal configuration
type TerminalConfig struct {
	Environment  string
	LogLevel     string
	DBPath       string
	ServerURL    string
	APIToken     string
	SyncInterval time.Duration
	HTTPTimeout  time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads API configuration from environment variables
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WORKER_COUNT", 5)
	v.SetDefault("SAGA_RECOVERY_INTERVAL", "1m")
	v.SetDefault("OVERDUE_SCAN_INTERVAL", "6h")
	v.SetDefault("INVOICE_RETRY_ATTEMPTS", 3)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("SYNC_RATE_LIMIT", 5)
	v.SetDefault("SYNC_BURST", 20)

	cfg := &Config{
		Port:                 v.GetString("PORT"),
		Environment:          v.GetString("ENVIRONMENT"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		WorkerCount:          v.GetInt("WORKER_COUNT"),
		SagaRecoveryInterval: v.GetDuration("SAGA_RECOVERY_INTERVAL"),
		OverdueScanInterval:  v.GetDuration("OVERDUE_SCAN_INTERVAL"),
		InvoiceRetryAttempts: v.GetInt("INVOICE_RETRY_ATTEMPTS"),
		AllowedOrigins:       splitList(v.GetString("ALLOWED_ORIGINS")),
		SyncRateLimit:        v.GetFloat64("SYNC_RATE_LIMIT"),
		SyncBurst:            v.GetInt("SYNC_BURST"),
		RedisURL:             v.GetString("REDIS_URL"),
		SentryDSN:            v.GetString("SENTRY_DSN"),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	if cfg.InvoiceRetryAttempts < 1 {
		cfg.InvoiceRetryAttempts = 1
	}

	return cfg, nil
}

// LoadTerminal reads terminal configuration from environment variables.
// Flags bound by the CLI override these values.
func LoadTerminal() (*TerminalConfig, error) {
	v := newViper()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TERMINAL_DB_PATH", "./terminal.db")
	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.SetDefault("SYNC_INTERVAL", "30s")
	v.SetDefault("HTTP_TIMEOUT", "15s")

	cfg := &TerminalConfig{
		Environment:  v.GetString("ENVIRONMENT"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		DBPath:       v.GetString("TERMINAL_DB_PATH"),
		ServerURL:    strings.TrimRight(v.GetString("SERVER_URL"), "/"),
		APIToken:     v.GetString("API_TOKEN"),
		SyncInterval: v.GetDuration("SYNC_INTERVAL"),
		HTTPTimeout:  v.GetDuration("HTTP_TIMEOUT"),
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("TERMINAL_DB_PATH is required")
	}

	return cfg, nil
}

// splitList reads a comma-separated value, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
