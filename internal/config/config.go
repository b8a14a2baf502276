// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for all databases (always absolute)
	Port        int
	DevMode     bool
	LogLevel    string
	BaseURL     string // Public base URL, used to build tracking links sent to customers
	JWTSecret   string
	TokenTTLMin int // Session token lifetime in minutes
	Evidence    *EvidenceConfig
	WhatsApp    *WhatsAppConfig
}

// EvidenceConfig holds the S3-compatible storage settings for drawer photo evidence.
// An empty bucket disables uploads (evidence requests are then logged and dropped).
type EvidenceConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO); empty = AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// WhatsAppConfig holds the settings for the WhatsApp gateway side-channel
type WhatsAppConfig struct {
	GatewayURL  string
	MaxAttempts int // Bounded retry budget per queued notification
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CAJA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Port:        getEnvAsInt("PORT", 4001),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:4001"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenTTLMin: getEnvAsInt("TOKEN_TTL_MIN", 480),
		Evidence: &EvidenceConfig{
			Bucket:          getEnv("EVIDENCE_BUCKET", ""),
			Endpoint:        getEnv("EVIDENCE_ENDPOINT", ""),
			Region:          getEnv("EVIDENCE_REGION", "auto"),
			AccessKeyID:     getEnv("EVIDENCE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("EVIDENCE_SECRET_ACCESS_KEY", ""),
		},
		WhatsApp: &WhatsAppConfig{
			GatewayURL:  getEnv("WHATSAPP_GATEWAY_URL", ""),
			MaxAttempts: getEnvAsInt("WHATSAPP_MAX_ATTEMPTS", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" && !c.DevMode {
		return fmt.Errorf("JWT_SECRET is required outside dev mode")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
