package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultMaxMemoryMB = 48
	DefaultDataDir     = "./data/pesaflow"
)

// Pipeline cadence and timeouts
const (
	DefaultRunInterval = 1 * time.Hour
	ExtractTimeout     = 30 * time.Second
	TransformTimeout   = 2 * time.Minute
	LoadTimeout        = 1 * time.Minute
)

// Customer scoring thresholds
const (
	// ChurnAfterDays marks a customer churned once this many whole days
	// have passed since their last transaction.
	ChurnAfterDays = 30

	// ChurnDecayDays is the recency horizon of the churn score:
	// churn = clamp(days_since_last / ChurnDecayDays, 0, 1).
	ChurnDecayDays = 60

	// QuintileMinCustomers is the smallest touched-customer set that still
	// gets real quintile ranks. Below it every score falls back to neutral.
	QuintileMinCustomers = 5

	// NeutralScore is the fallback RFM score for degenerate quintiles.
	NeutralScore = 3

	// Synthetic first-seen window for customers with no persisted history:
	// first_seen is seeded last_seen minus a random 10-180 day offset.
	SyntheticFirstSeenMinDays = 10
	SyntheticFirstSeenMaxDays = 180

	// DaysPerMonth converts leftover days into fractional months for the
	// lifetime-value estimate.
	DaysPerMonth = 30.44
)

// Webhook limits
const (
	WebhookTimeout     = 5 * time.Second
	WebhookMaxBodySize = 64 * 1024
)

// Report API limits
const (
	ReportTimeout       = 10 * time.Second
	ReportCustomerLimit = 10000
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 64
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
)

// Config holds process-wide settings for the hosting process. It is built
// once at startup and passed explicitly to each component.
type Config struct {
	DataDir     string
	Port        string
	RunInterval time.Duration
	MaxMemoryMB int64
	InMemory    bool
}

// Load reads configuration from environment variables.
func Load(log zerolog.Logger) Config {
	cfg := Config{
		DataDir:     getEnv("PESAFLOW_DATA_DIR", DefaultDataDir),
		Port:        getEnv("PESAFLOW_PORT", DefaultPort),
		RunInterval: getEnvDuration(log, "PESAFLOW_RUN_INTERVAL", DefaultRunInterval),
		MaxMemoryMB: getEnvInt64(log, "PESAFLOW_MAX_MEMORY_MB", DefaultMaxMemoryMB),
		InMemory:    os.Getenv("PESAFLOW_IN_MEMORY") == "true",
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
		}
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt64(log zerolog.Logger, key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", val).Int64("default", defaultValue).
			Msg("invalid integer in environment, using default")
	}
	return defaultValue
}

func getEnvDuration(log zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", val).Dur("default", defaultValue).
			Msg("invalid duration in environment, using default")
	}
	return defaultValue
}
