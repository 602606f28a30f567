package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	// Rater (external rating engine) connection.
	RaterURL      string
	RaterUser     string
	RaterPassword string
	RaterTenant   string
	// RaterTimeout is the per-call timeout; never below one second.
	RaterTimeout time.Duration

	// Trunk (carrier backend) connection.
	TrunkURL     string
	TrunkToken   string
	InboundToken string
	SelfURL      string

	// MIS subscription-fee provider.
	MisURL      string
	MisUser     string
	MisPassword string

	MaxCallDuration time.Duration
	CoolDownMinutes int
	NewInvoiceHours int
	BlackListInDays int
	PackageCodePfx  string
	APILogRetention int
	CacheTTL        time.Duration
	CacheAccountTTL time.Duration

	// Per-client request rate limiting; RPS <= 0 disables it.
	RateLimitRPS   int
	RateLimitBurst int

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	LogDBHost     string
	LogDBPort     string
	LogDBName     string
	LogDBUser     string
	LogDBPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	raterTimeout := getenvDuration("RATER_TIMEOUT", 3*time.Second)
	if raterTimeout < time.Second {
		raterTimeout = time.Second
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "trunkgate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		RaterURL:      getenv("RATER_URL", "http://localhost:2080/jsonrpc"),
		RaterUser:     getenv("RATER_USER", "cgrates"),
		RaterPassword: getenv("RATER_PASSWORD", ""),
		RaterTenant:   getenv("RATER_TENANT", "cgrates.org"),
		RaterTimeout:  raterTimeout,

		TrunkURL:     getenv("TRUNK_URL", "http://localhost:9000"),
		TrunkToken:   getenv("TRUNK_TOKEN", ""),
		InboundToken: getenv("INBOUND_TOKEN", ""),
		SelfURL:      getenv("SELF_URL", "http://localhost:8080"),

		MisURL:      getenv("MIS_URL", ""),
		MisUser:     getenv("MIS_USER", ""),
		MisPassword: getenv("MIS_PASSWORD", ""),

		MaxCallDuration: getenvDuration("MAX_CALL_DURATION", 2*time.Hour),
		CoolDownMinutes: getenvInt("COOL_DOWN_MINUTES", 10),
		NewInvoiceHours: getenvInt("NEW_INVOICE_HOURS", 24),
		BlackListInDays: getenvInt("BLACK_LIST_IN_DAYS", 90),
		PackageCodePfx:  getenv("PACKAGE_CODE_PREFIX", "PKG"),
		APILogRetention: getenvInt("API_LOG_RETENTION_DAYS", 30),
		CacheTTL:        getenvDuration("CACHE_TTL", 10*time.Minute),
		CacheAccountTTL: getenvDuration("CACHE_ACCOUNT_TTL", 5*time.Hour),

		RateLimitRPS:   getenvInt("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 100),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "trunkgate"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		LogDBHost:     getenv("LOG_DATABASE_HOST", ""),
		LogDBPort:     getenv("LOG_DATABASE_PORT", "5432"),
		LogDBName:     getenv("LOG_DATABASE_NAME", "trunkgate_log"),
		LogDBUser:     getenv("LOG_DATABASE_USER", "postgres"),
		LogDBPassword: getenv("LOG_DATABASE_PASSWORD", ""),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}
}

func (c Config) CoolDown() time.Duration {
	return time.Duration(c.CoolDownMinutes) * time.Minute
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	// Accept either a Go duration or a bare number of seconds.
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return d
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
