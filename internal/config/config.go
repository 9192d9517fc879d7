// Package config provides configuration management for the scanner binaries.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Detection  DetectionConfig
	Scan       ScanConfig
	Polymarket PolymarketConfig
	Explorer   ExplorerConfig
	WalletAge  WalletAgeConfig
	Alerts     AlertsConfig
	Logging    LoggingConfig
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RateLimitRPS int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // "sqlite" or "postgres"
	SQLite   SQLiteConfig
	Postgres PostgresConfig
	Redis    RedisConfig
}

// SQLiteConfig holds embedded store configuration
type SQLiteConfig struct {
	Path string
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns a connection URL usable by pgx and golang-migrate
func (c PostgresConfig) URL() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// DetectionConfig holds the default detection thresholds
type DetectionConfig struct {
	WalletAgeDays   int
	MinBetSizeUSD   float64
	MaxPrice        float64
	CheckWalletAge  bool
	CheckBetSize    bool
	CheckOdds       bool
	AllowCategories []string
	DenyCategories  []string
}

// ScanConfig holds scheduler and orchestrator configuration
type ScanConfig struct {
	Mode           types.ScanMode
	Interval       time.Duration
	MarketDelay    time.Duration
	RecentLimit    int
	MarketLimit    int
	ActivityLimit  int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// PolymarketConfig holds market-data API configuration
type PolymarketConfig struct {
	DataURL  string
	GammaURL string
	APIKey   string
	RPS      float64
	Timeout  time.Duration
}

// ExplorerConfig holds block-explorer API configuration
type ExplorerConfig struct {
	BaseURL string
	APIKey  string
	ChainID int
	RPS     float64
	Timeout time.Duration
}

// WalletAgeConfig holds wallet-age cache configuration
type WalletAgeConfig struct {
	CacheSize int
	RedisTTL  time.Duration
}

// AlertsConfig holds alert channel configuration
type AlertsConfig struct {
	TelegramToken     string
	TelegramChatID    string
	SlackWebhookURL   string
	DiscordWebhookURL string
	Timeout           time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	defaults := models.DefaultDetectionConfig()

	mode, ok := types.ParseScanMode(getEnv("SCAN_MODE", string(types.ScanModeRecent)))
	if !ok {
		return nil, fmt.Errorf("invalid SCAN_MODE %q", os.Getenv("SCAN_MODE"))
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RateLimitRPS: getEnvAsInt("SERVER_RATE_LIMIT_RPS", 20),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "polytracker.db"),
			},
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "polytracker"),
				User:           getEnv("POSTGRES_USER", "polytracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", false),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Detection: DetectionConfig{
			WalletAgeDays:   getEnvAsInt("WALLET_AGE_DAYS", defaults.WalletAgeDays),
			MinBetSizeUSD:   getEnvAsFloat("MIN_BET_SIZE", defaults.MinBetSizeUSD),
			MaxPrice:        getEnvAsFloat("MAX_ODDS", defaults.MaxPrice),
			CheckWalletAge:  getEnvAsBool("CHECK_WALLET_AGE", defaults.CheckWalletAge),
			CheckBetSize:    getEnvAsBool("CHECK_BET_SIZE", defaults.CheckBetSize),
			CheckOdds:       getEnvAsBool("CHECK_ODDS", defaults.CheckOdds),
			AllowCategories: getEnvAsList("ALLOW_CATEGORIES"),
			DenyCategories:  getEnvAsList("DENY_CATEGORIES"),
		},
		Scan: ScanConfig{
			Mode:           mode,
			Interval:       getEnvAsDuration("SCAN_INTERVAL", 5*time.Minute),
			MarketDelay:    getEnvAsDuration("SCAN_MARKET_DELAY", 2*time.Second),
			RecentLimit:    getEnvAsInt("SCAN_RECENT_LIMIT", 500),
			MarketLimit:    getEnvAsInt("SCAN_MARKET_LIMIT", 100),
			ActivityLimit:  getEnvAsInt("SCAN_ACTIVITY_LIMIT", 100),
			MaxRetries:     getEnvAsInt("SCAN_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvAsDuration("SCAN_RETRY_BASE_DELAY", time.Second),
		},
		Polymarket: PolymarketConfig{
			DataURL:  getEnv("POLYMARKET_DATA_URL", "https://data-api.polymarket.com"),
			GammaURL: getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
			APIKey:   getEnv("POLYMARKET_API_KEY", ""),
			RPS:      getEnvAsFloat("POLYMARKET_RPS", 5),
			Timeout:  getEnvAsDuration("POLYMARKET_TIMEOUT", 30*time.Second),
		},
		Explorer: ExplorerConfig{
			BaseURL: getEnv("EXPLORER_URL", "https://api.etherscan.io/v2/api"),
			APIKey:  getEnv("POLYGONSCAN_API_KEY", ""),
			ChainID: getEnvAsInt("EXPLORER_CHAIN_ID", 137),
			RPS:     getEnvAsFloat("EXPLORER_RPS", 3),
			Timeout: getEnvAsDuration("EXPLORER_TIMEOUT", 30*time.Second),
		},
		WalletAge: WalletAgeConfig{
			CacheSize: getEnvAsInt("WALLET_AGE_CACHE_SIZE", 10000),
			RedisTTL:  getEnvAsDuration("WALLET_AGE_REDIS_TTL", 0),
		},
		Alerts: AlertsConfig{
			TelegramToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			SlackWebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
			Timeout:           getEnvAsDuration("ALERT_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded configuration for unusable values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Scan.Interval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive")
	}
	if c.Scan.MaxRetries < 1 {
		return fmt.Errorf("SCAN_MAX_RETRIES must be at least 1")
	}
	if c.Polymarket.RPS <= 0 || c.Explorer.RPS <= 0 {
		return fmt.Errorf("request rates must be positive")
	}
	if err := c.DetectionConfig().Validate(); err != nil {
		return fmt.Errorf("detection config: %w", err)
	}
	return nil
}

// DetectionConfig returns the configured thresholds as a detection value object
func (c *Config) DetectionConfig() models.DetectionConfig {
	return models.DetectionConfig{
		WalletAgeDays:   c.Detection.WalletAgeDays,
		MinBetSizeUSD:   c.Detection.MinBetSizeUSD,
		MaxPrice:        c.Detection.MaxPrice,
		CheckWalletAge:  c.Detection.CheckWalletAge,
		CheckBetSize:    c.Detection.CheckBetSize,
		CheckOdds:       c.Detection.CheckOdds,
		AllowCategories: append([]string(nil), c.Detection.AllowCategories...),
		DenyCategories:  append([]string(nil), c.Detection.DenyCategories...),
	}
}

// Summary returns loggable fields with secrets masked
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"dbDriver":       c.Database.Driver,
		"redisEnabled":   c.Database.Redis.Enabled,
		"scanMode":       c.Scan.Mode,
		"scanInterval":   c.Scan.Interval.String(),
		"walletAgeDays":  c.Detection.WalletAgeDays,
		"minBetSize":     c.Detection.MinBetSizeUSD,
		"maxOdds":        c.Detection.MaxPrice,
		"explorerKey":    Mask(c.Explorer.APIKey),
		"telegramToken":  Mask(c.Alerts.TelegramToken),
		"slackWebhook":   Mask(c.Alerts.SlackWebhookURL),
		"discordWebhook": Mask(c.Alerts.DiscordWebhookURL),
	}
}

// Mask hides all but the last four characters of a secret
func Mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated environment variable, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
