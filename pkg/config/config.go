package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	RPC      RPCConfig
	Security SecurityConfig

	// Telegram
	Telegram TelegramConfig

	// Signal thresholds
	Signals SignalConfig

	// Tracker thresholds
	Wallets WalletConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RPCConfig holds Solana RPC / indexer API configuration
type RPCConfig struct {
	APIKey       string
	HTTPEndpoint string
	WSEndpoint   string
	SecurityAPI  string // token security endpoint (GoPlus-compatible)
	PriceAPI     string
}

// SecurityConfig holds webhook ingress security settings
type SecurityConfig struct {
	WebhookSecret  string // HMAC secret; empty disables verification
	RateLimitRPS   float64
	RateLimitBurst int
}

// TelegramConfig holds notification sink configuration
type TelegramConfig struct {
	BotToken string
	ChatIDs  []string
}

// SignalConfig holds the trigger thresholds for the signal processor
type SignalConfig struct {
	HighConvictionMinSOL       float64
	HighConvictionMinSupplyPct float64
	ClusterMinWallets          int
	ClusterWindowMinutes       int
	ClusterMinSOL              float64
	VolumeSpikeThreshold       float64
	NewTokenMaxAgeMinutes      int
}

// WalletConfig holds tracked-wallet quality thresholds
type WalletConfig struct {
	MinWinRate  float64
	MinTrades7d int
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		RPC: RPCConfig{
			APIKey:       getEnv("RPC_API_KEY", ""),
			HTTPEndpoint: getEnv("RPC_HTTP_ENDPOINT", "https://mainnet.helius-rpc.com"),
			WSEndpoint:   getEnv("RPC_WS_ENDPOINT", ""),
			SecurityAPI:  getEnv("TOKEN_SECURITY_API", "https://api.gopluslabs.io/api/v1/token_security/solana"),
			PriceAPI:     getEnv("PRICE_API", "https://price.jup.ag/v6/price"),
		},

		Security: SecurityConfig{
			WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
			RateLimitRPS:   getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 30),
		},

		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatIDs:  getEnvAsSlice("TELEGRAM_CHAT_IDS", nil),
		},

		Signals: SignalConfig{
			HighConvictionMinSOL:       getEnvAsFloat("HIGH_CONVICTION_MIN_SOL", 1.0),
			HighConvictionMinSupplyPct: getEnvAsFloat("HIGH_CONVICTION_MIN_SUPPLY_PCT", 0.5),
			ClusterMinWallets:          getEnvAsInt("CLUSTER_MIN_WALLETS", 2),
			ClusterWindowMinutes:       getEnvAsInt("CLUSTER_WINDOW_MINUTES", 5),
			ClusterMinSOL:              getEnvAsFloat("CLUSTER_MIN_SOL", 0.5),
			VolumeSpikeThreshold:       getEnvAsFloat("VOLUME_SPIKE_THRESHOLD", 0.1),
			NewTokenMaxAgeMinutes:      getEnvAsInt("NEW_TOKEN_MAX_AGE_MINUTES", 60),
		},

		Wallets: WalletConfig{
			MinWinRate:  getEnvAsFloat("MIN_WIN_RATE", 65.0),
			MinTrades7d: getEnvAsInt("MIN_TRADES_7D", 10),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Signals.ClusterMinWallets < 2 {
		return fmt.Errorf("CLUSTER_MIN_WALLETS must be at least 2")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
