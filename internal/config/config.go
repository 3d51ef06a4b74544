package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Ingest  IngestConfig
	Storage StorageConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Host string
	Env  string // "development" or "production"
}

// EngineConfig seeds every match store the hub creates
type EngineConfig struct {
	BasePrice       decimal.Decimal
	StartingCredits decimal.Decimal
	Ticker          string
	Title           string
	Seed            uint64 // 0 picks a random seed per match
	ReopenDelay     time.Duration
	BlindSpectating bool
	MatchCodeLength int
	StaleMatchAfter time.Duration
}

// IngestConfig selects what feeds the live match
type IngestConfig struct {
	Source            string // "none", "demo", "ws" or "nats"
	WSURL             string
	ReconnectInterval time.Duration
	NATSURL           string
	NATSSubject       string
}

// StorageConfig locates the settlement database. An empty path disables it.
type StorageConfig struct {
	SQLitePath string
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load reads a .env file if present, then the environment, with defaults
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Engine: EngineConfig{
			BasePrice:       getEnvDecimal("BASE_PRICE", decimal.RequireFromString("0.001")),
			StartingCredits: getEnvDecimal("STARTING_CREDITS", decimal.NewFromInt(1000)),
			Ticker:          getEnv("TOKEN_TICKER", "$SUS"),
			Title:           getEnv("TOKEN_TITLE", "SusProtocol"),
			Seed:            uint64(getEnvInt("PRICE_SEED", 0)),
			ReopenDelay:     time.Duration(getEnvInt("REOPEN_DELAY_MS", 2000)) * time.Millisecond,
			BlindSpectating: getEnvBool("BLIND_SPECTATING", false),
			MatchCodeLength: getEnvInt("MATCH_CODE_LENGTH", 6),
			StaleMatchAfter: time.Duration(getEnvInt("STALE_MATCH_MINUTES", 120)) * time.Minute,
		},
		Ingest: IngestConfig{
			Source:            strings.ToLower(getEnv("INGEST_SOURCE", "demo")),
			WSURL:             getEnv("INGEST_WS_URL", "ws://localhost:8000/ws"),
			ReconnectInterval: time.Duration(getEnvInt("INGEST_RECONNECT_MS", 3000)) * time.Millisecond,
			NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			NATSSubject:       getEnv("NATS_SUBJECT", "sus.events"),
		},
		Storage: StorageConfig{
			SQLitePath: getEnv("SETTLEMENT_DB", "susmarket.db"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an environment variable as an integer or a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool accepts anything strconv.ParseBool does
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDecimal ignores values that are not positive numbers
func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := decimal.NewFromString(value); err == nil && d.IsPositive() {
			return d
		}
	}
	return defaultValue
}
