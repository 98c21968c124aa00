package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseMinConns int
	DatabaseMaxConns int
	// Acquire timeout in seconds
	DatabaseAcquireTimeout int

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// SEC EDGAR configuration
	SEC SECConfig

	// Monitor configuration
	Monitor MonitorConfig

	// Detection parameters
	Detection DetectionConfig

	// LLM configuration
	LLM LLMConfig

	// Ticker universe
	UniverseFile      string
	UniverseSourceURL string

	// Alert delivery
	AlertWebhookURL string

	APIPort string
}

// SECConfig holds EDGAR client configuration. The SEC requires a descriptive
// User-Agent and enforces a fair-access request budget.
type SECConfig struct {
	UserAgent       string
	IngestRateLimit float64 // requests per second
}

// MonitorConfig holds filing monitor cadence configuration
type MonitorConfig struct {
	AtomPollIntervalMarket int // seconds, during market hours
	AtomPollIntervalOff    int // seconds, outside market hours
	BatchIntervalMinutes   int
	BatchOverlapHours      int
	MarketOpen             string // "09:30" Eastern
	MarketClose            string // "16:00" Eastern
}

// DetectionConfig holds anomaly detection thresholds
type DetectionConfig struct {
	LookbackDays      int
	ClusterWindowDays int
	AnomalyThreshold  float64
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:           getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:           getEnvInt("DB_PORT", 5432),
		DatabaseName:           getEnvOrDefault("DB_NAME", "form4_sentinel"),
		DatabaseUser:           getEnvOrDefault("DB_USER", "sentinel"),
		DatabasePassword:       getEnvOrDefault("DB_PASSWORD", "sentinel123"),
		DatabaseMinConns:       getEnvInt("DB_MIN_CONNS", 2),
		DatabaseMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DatabaseAcquireTimeout: getEnvInt("DB_ACQUIRE_TIMEOUT", 5),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		SEC: SECConfig{
			UserAgent:       getEnvOrDefault("SEC_USER_AGENT", "form4-sentinel admin@example.com"),
			IngestRateLimit: getEnvFloat("INGEST_RATE_LIMIT", 5.0),
		},

		Monitor: MonitorConfig{
			AtomPollIntervalMarket: getEnvInt("ATOM_POLL_INTERVAL_MARKET", 300),
			AtomPollIntervalOff:    getEnvInt("ATOM_POLL_INTERVAL_OFF", 1800),
			BatchIntervalMinutes:   getEnvInt("BATCH_INTERVAL_MINUTES", 60),
			BatchOverlapHours:      getEnvInt("BATCH_OVERLAP_HOURS", 24),
			MarketOpen:             getEnvOrDefault("MARKET_OPEN", "09:30"),
			MarketClose:            getEnvOrDefault("MARKET_CLOSE", "16:00"),
		},

		Detection: DetectionConfig{
			LookbackDays:      getEnvInt("LOOKBACK_DAYS", 730),
			ClusterWindowDays: getEnvInt("CLUSTER_WINDOW_DAYS", 14),
			AnomalyThreshold:  getEnvFloat("ANOMALY_THRESHOLD", 0.6),
		},

		// LLM configuration
		LLM: LLMConfig{
			Enabled:  getEnvOrDefault("LLM_ENABLED", "false") == "true",
			Endpoint: getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:   getEnvOrDefault("LLM_API_KEY", ""),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		},

		UniverseFile:      getEnvOrDefault("UNIVERSE_FILE", "universe.csv"),
		UniverseSourceURL: getEnvOrDefault("UNIVERSE_SOURCE_URL", ""),

		AlertWebhookURL: getEnvOrDefault("ALERT_WEBHOOK_URL", ""),

		APIPort: getEnvOrDefault("API_PORT", "8090"),
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behaviour. Called once at startup; failures are fatal.
func (c *Config) Validate() error {
	if c.DatabasePort <= 0 || c.DatabasePort > 65535 {
		return fmt.Errorf("invalid DB_PORT: %d", c.DatabasePort)
	}
	if c.SEC.IngestRateLimit <= 0 {
		return fmt.Errorf("INGEST_RATE_LIMIT must be > 0, got %v", c.SEC.IngestRateLimit)
	}
	if c.Detection.AnomalyThreshold < 0 || c.Detection.AnomalyThreshold > 1 {
		return fmt.Errorf("ANOMALY_THRESHOLD must be in [0,1], got %v", c.Detection.AnomalyThreshold)
	}
	if c.Detection.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be > 0, got %d", c.Detection.LookbackDays)
	}
	if c.Detection.ClusterWindowDays <= 0 {
		return fmt.Errorf("CLUSTER_WINDOW_DAYS must be > 0, got %d", c.Detection.ClusterWindowDays)
	}
	if c.Monitor.AtomPollIntervalMarket <= 0 || c.Monitor.AtomPollIntervalOff <= 0 {
		return fmt.Errorf("ATOM poll intervals must be > 0")
	}
	if c.Monitor.BatchIntervalMinutes <= 0 {
		return fmt.Errorf("BATCH_INTERVAL_MINUTES must be > 0, got %d", c.Monitor.BatchIntervalMinutes)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
