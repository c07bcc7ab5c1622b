package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment  string
	Port         string
	ValidAPIKeys []string

	// Database (Supabase Postgres)
	DatabaseURL string

	// Redis
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Solana program gateway
	LedgerEndpoints []string
	LedgerTimeout   time.Duration

	// Geolocation
	GeoDBPath string

	// Topology thresholds
	MapThresholdKm      float64
	NeighborThresholdKm float64
	NeighborLimit       int

	// Schedulers
	SnapshotInterval time.Duration
	RewardInterval   time.Duration
	RewardsEnabled   bool

	// Cache TTLs
	MapCacheTTL      time.Duration
	StatsCacheTTL    time.Duration
	ActivityCacheTTL time.Duration

	// Rate limiting
	RateLimitRPM int

	// Notifications
	NotifyEmailFrom     string
	NotifyEmailPassword string
	NotifySMTPAddr      string
	TelegramBotToken    string
	TelegramChatID      int64
}

func Load() *Config {
	validAPIKeysStr := getEnv("VALID_API_KEYS", "")
	if validAPIKeysStr == "" {
		validAPIKeysStr = getEnv("API_KEY", "")
	}
	var validAPIKeys []string
	for _, key := range strings.Split(validAPIKeysStr, ",") {
		if key = strings.TrimSpace(key); key != "" {
			validAPIKeys = append(validAPIKeys, key)
		}
	}

	defaultLedger := "https://gateway.thepublic.network/rpc"
	var ledgerEndpoints []string
	for _, ep := range strings.Split(getEnv("LEDGER_ENDPOINTS", defaultLedger), ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			ledgerEndpoints = append(ledgerEndpoints, ep)
		}
	}

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		Port:         getEnv("PORT", "8080"),
		ValidAPIKeys: validAPIKeys,

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		LedgerEndpoints: ledgerEndpoints,
		LedgerTimeout:   getEnvAsDuration("LEDGER_TIMEOUT", 10*time.Second),

		GeoDBPath: getEnv("GEO_DB_PATH", "./location-db/IP2LOCATION-LITE-DB11.IPV6.BIN"),

		MapThresholdKm:      getEnvAsFloat("MAP_THRESHOLD_KM", 5),
		NeighborThresholdKm: getEnvAsFloat("NEIGHBOR_THRESHOLD_KM", 10),
		NeighborLimit:       getEnvAsInt("NEIGHBOR_LIMIT", 10),

		SnapshotInterval: getEnvAsDuration("SNAPSHOT_INTERVAL", 5*time.Minute),
		RewardInterval:   getEnvAsDuration("REWARD_INTERVAL", 24*time.Hour),
		RewardsEnabled:   getEnvAsBool("REWARDS_ENABLED", true),

		MapCacheTTL:      getEnvAsDuration("MAP_CACHE_TTL", 30*time.Second),
		StatsCacheTTL:    getEnvAsDuration("STATS_CACHE_TTL", time.Minute),
		ActivityCacheTTL: getEnvAsDuration("ACTIVITY_CACHE_TTL", 5*time.Minute),

		RateLimitRPM: getEnvAsInt("RATE_LIMIT_RPM", 100),

		NotifyEmailFrom:     getEnv("NOTIFY_EMAIL_FROM", ""),
		NotifyEmailPassword: getEnv("NOTIFY_EMAIL_APP_PASSWORD", ""),
		NotifySMTPAddr:      getEnv("NOTIFY_SMTP_ADDR", "smtp.gmail.com:587"),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      int64(getEnvAsInt("TELEGRAM_CHAT_ID", 0)),
	}

	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL environment variable is required")
	}
	if len(cfg.ValidAPIKeys) == 0 {
		logrus.Fatal("VALID_API_KEYS environment variable is required")
	}
	if cfg.TelegramBotToken == "" {
		logrus.Info("TELEGRAM_BOT_TOKEN not set - Telegram alerts disabled")
	}
	if cfg.NotifyEmailFrom == "" {
		logrus.Info("NOTIFY_EMAIL_FROM not set - email notifications disabled")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
