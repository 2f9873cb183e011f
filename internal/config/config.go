package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"otcbot/pkg/crypto"
)

// Config holds the whole application configuration, assembled once at
// startup by Load and passed down explicitly — no component reads the
// environment directly (§9 Global mutable state).
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	Router     RouterConfig
	Price      PriceConfig
	Deal       DealConfig
	AI         AIConfig
	Dispatcher DispatcherConfig
	Logging    LoggingConfig
}

// ServerConfig controls the dashboard HTTP server (§6.2).
type ServerConfig struct {
	Port            int
	Host            string
	UseHTTPS        bool
	CertFile        string
	KeyFile         string
	AllowedOrigins  []string
	RateLimitPerMin int // general API, default 60
	ModeRateLimit   int // mode-change endpoints, default 10
}

// DatabaseConfig configures the lib/pq connection backing internal/repository.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig configures the dashboard shared secret and at-rest
// encryption for secrets held in the environment (§6.2, §6.4).
type SecurityConfig struct {
	DashboardSecret string // X-Dashboard-Key; empty = write API open (dev mode)
	EncryptionKey   string // must be exactly 32 bytes for AES-256-GCM
}

// RouterConfig configures the router's control-group detection (§4.2).
type RouterConfig struct {
	ControlGroupPattern string
	PhoneNumber         string
}

// PriceConfig configures the three price sources (§4.5, §6.4).
type PriceConfig struct {
	TradingViewURL             string
	TradingViewStaleMs         int
	TradingViewFrozenMs        int
	TradingViewWatchdogMs      int
	TradingViewMaxNavPerHour   int
	TradingViewBypassCooldown  time.Duration
	StreamAURL                 string
	RestFallbackURL            string
	RestFallbackTimeout        time.Duration
	SanityBandUSDBRLLow        float64
	SanityBandUSDBRLHigh       float64
	ReconnectBackoffInitial    time.Duration
	ReconnectBackoffMax        time.Duration
}

// DealConfig configures the deal engine's default TTL and sweeper cadence
// (§4.6.5, §6.4).
type DealConfig struct {
	DefaultQuoteTTLSeconds int
	SweepInterval          time.Duration
	LockTimeoutMs          int // per-deal lock acquisition bound, §5
	MaxExtendSeconds       int
	MaxCumulativeExtendX   int // multiple of the original TTL
}

// AIConfig configures the optional AI classifier boundary (§4.11).
type AIConfig struct {
	Endpoint           string
	APIKey             string
	PerGroupRateLimit  int // per minute
	GlobalRateLimit    int // per hour
	CircuitOpenAfter   int
	CircuitCooldown    time.Duration
	CacheTTL           time.Duration
	CacheCapacity      int
}

// DispatcherConfig configures the per-group worker pool (§4.1).
type DispatcherConfig struct {
	MaxConcurrentGroups int
	QueueDepthPerGroup  int
	WorkerIdleTimeout   time.Duration
	HandlerTimeout      time.Duration
}

// LoggingConfig controls pkg/utils.InitLogger.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, applying defaults and
// failing closed on malformed security-critical values.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:        getEnvAsBool("USE_HTTPS", false),
			CertFile:        getEnv("CERT_FILE", ""),
			KeyFile:         getEnv("KEY_FILE", ""),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", nil),
			RateLimitPerMin: getEnvAsInt("API_RATE_LIMIT_PER_MIN", 60),
			ModeRateLimit:   getEnvAsInt("MODE_CHANGE_RATE_LIMIT_PER_MIN", 10),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "otcbot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			DashboardSecret: getEnv("DASHBOARD_SECRET", ""),
			EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		},
		Router: RouterConfig{
			ControlGroupPattern: getEnv("CONTROL_GROUP_PATTERN", "control"),
			PhoneNumber:         getEnv("PHONE_NUMBER", ""),
		},
		Price: PriceConfig{
			TradingViewURL:            getEnv("TRADINGVIEW_URL", ""),
			TradingViewStaleMs:        getEnvAsInt("TRADINGVIEW_STALE_MS", 120_000),
			TradingViewFrozenMs:       getEnvAsInt("TRADINGVIEW_FROZEN_MS", 90_000),
			TradingViewWatchdogMs:     getEnvAsInt("TRADINGVIEW_WATCHDOG_MS", 30_000),
			TradingViewMaxNavPerHour:  getEnvAsInt("TRADINGVIEW_MAX_NAV_PER_HOUR", 12),
			TradingViewBypassCooldown: time.Duration(getEnvAsInt("TRADINGVIEW_RATE_LIMIT_BYPASS_MS", 300_000)) * time.Millisecond,
			StreamAURL:                getEnv("STREAM_A_URL", ""),
			RestFallbackURL:           getEnv("REST_FALLBACK_URL", ""),
			RestFallbackTimeout:       getEnvAsDuration("REST_FALLBACK_TIMEOUT", 10*time.Second),
			SanityBandUSDBRLLow:       getEnvAsFloat("SANITY_BAND_USDBRL_LOW", 3.0),
			SanityBandUSDBRLHigh:      getEnvAsFloat("SANITY_BAND_USDBRL_HIGH", 10.0),
			ReconnectBackoffInitial:   getEnvAsDuration("PRICE_RECONNECT_BACKOFF_INITIAL", 2*time.Second),
			ReconnectBackoffMax:       getEnvAsDuration("PRICE_RECONNECT_BACKOFF_MAX", 30*time.Second),
		},
		Deal: DealConfig{
			DefaultQuoteTTLSeconds: getEnvAsInt("DEFAULT_QUOTE_TTL_SECONDS", 180),
			SweepInterval:          getEnvAsDuration("DEAL_SWEEP_INTERVAL", 10*time.Second),
			LockTimeoutMs:          getEnvAsInt("DEAL_LOCK_TIMEOUT_MS", 100),
			MaxExtendSeconds:       getEnvAsInt("DEAL_MAX_EXTEND_SECONDS", 3600),
			MaxCumulativeExtendX:   getEnvAsInt("DEAL_MAX_CUMULATIVE_EXTEND_X", 2),
		},
		AI: AIConfig{
			Endpoint:          getEnv("AI_ENDPOINT", ""),
			APIKey:            getEnv("AI_API_KEY", ""),
			PerGroupRateLimit: getEnvAsInt("AI_PER_GROUP_RATE_LIMIT", 10),
			GlobalRateLimit:   getEnvAsInt("AI_GLOBAL_RATE_LIMIT", 100),
			CircuitOpenAfter:  getEnvAsInt("AI_CIRCUIT_OPEN_AFTER", 3),
			CircuitCooldown:   getEnvAsDuration("AI_CIRCUIT_COOLDOWN", 5*time.Minute),
			CacheTTL:          getEnvAsDuration("AI_CACHE_TTL", 5*time.Minute),
			CacheCapacity:     getEnvAsInt("AI_CACHE_CAPACITY", 1000),
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrentGroups: getEnvAsInt("DISPATCHER_MAX_CONCURRENT_GROUPS", 500),
			QueueDepthPerGroup:  getEnvAsInt("DISPATCHER_QUEUE_DEPTH_PER_GROUP", 100),
			WorkerIdleTimeout:   getEnvAsDuration("DISPATCHER_WORKER_IDLE_TIMEOUT", 5*time.Minute),
			HandlerTimeout:      getEnvAsDuration("DISPATCHER_HANDLER_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Security.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required for encrypting secrets at rest")
	}
	if len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if enc := getEnv("AI_API_KEY_ENC", ""); enc != "" {
		plain, err := crypto.Decrypt(enc, []byte(cfg.Security.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("decrypting AI_API_KEY_ENC: %w", err)
		}
		cfg.AI.APIKey = plain
	}

	return cfg, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
