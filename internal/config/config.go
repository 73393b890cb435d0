package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Pipeline run parameters
	MaxItemsPerSource    int           `json:"max_items_per_source"`
	MaxHeadlinesPerTopic int           `json:"max_headlines_per_topic"`
	FreshnessWindow      time.Duration `json:"freshness_window"`
	RetentionWindow      time.Duration `json:"retention_window"`
	AggressivePosting    bool          `json:"aggressive_posting"`
	FetchTimeout         time.Duration `json:"fetch_timeout"`
	RunInterval          time.Duration `json:"run_interval"`

	// Storage
	FeedsPath  string `json:"feeds_path"`
	StatePath  string `json:"state_path"`
	DigestPath string `json:"digest_path"`

	// Dedup store backend: "file" or "redis"
	StoreBackend string `json:"store_backend"`
	RedisURL     string `json:"redis_url"`
	RedisPrefix  string `json:"redis_prefix"`

	// CloudFlare R2 / S3 digest archive (optional)
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Security
	AdminAPIKey string `json:"admin_api_key"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		// Pipeline run parameters
		MaxItemsPerSource:    getEnvAsInt("MAX_ITEMS_PER_SOURCE", 20),
		MaxHeadlinesPerTopic: getEnvAsInt("MAX_HEADLINES_PER_TOPIC", 4),
		FreshnessWindow:      getEnvAsDuration("FRESHNESS_WINDOW", 24*time.Hour),
		RetentionWindow:      getEnvAsDuration("RETENTION_WINDOW", 96*time.Hour),
		AggressivePosting:    getEnvAsBool("AGGRESSIVE_POSTING", false),
		FetchTimeout:         getEnvAsDuration("FETCH_TIMEOUT", 20*time.Second),
		RunInterval:          getEnvAsDuration("RUN_INTERVAL", 20*time.Minute),

		// Storage
		FeedsPath:  getEnv("FEEDS_PATH", "./config/feeds.json"),
		StatePath:  getEnv("STATE_PATH", "./data/state.json"),
		DigestPath: getEnv("DIGEST_PATH", "./data/digests"),

		// Dedup store backend
		StoreBackend: getEnv("STORE_BACKEND", "file"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:  getEnv("REDIS_PREFIX", "regionbrief:"),

		// CloudFlare R2 / S3 digest archive
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "regionbrief"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Security
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxItemsPerSource <= 0 {
		return fmt.Errorf("MAX_ITEMS_PER_SOURCE must be positive, got %d", c.MaxItemsPerSource)
	}
	if c.MaxHeadlinesPerTopic <= 0 {
		return fmt.Errorf("MAX_HEADLINES_PER_TOPIC must be positive, got %d", c.MaxHeadlinesPerTopic)
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW must be positive, got %v", c.FreshnessWindow)
	}
	// The retention horizon must outlast the freshness window, otherwise
	// records are forgotten while their items are still deliverable.
	if c.RetentionWindow <= c.FreshnessWindow {
		return fmt.Errorf("RETENTION_WINDOW (%v) must be greater than FRESHNESS_WINDOW (%v)",
			c.RetentionWindow, c.FreshnessWindow)
	}
	switch c.StoreBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"file\" or \"redis\", got %q", c.StoreBackend)
	}
	return nil
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %t", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
