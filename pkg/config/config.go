package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/ratelimit"
)

// MinProductionSecretLength is the shortest JWT secret accepted outside development
const MinProductionSecretLength = 32

// Config holds all application configuration
type Config struct {
	Environment string

	Server        ServerConfig
	Session       SessionConfig
	Family        FamilyConfig
	Store         StoreConfig
	RateLimit     RateLimitConfig
	Avatar        AvatarConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies is a comma-separated list of CIDRs or IPs whose
	// forwarding headers are believed
	TrustedProxies string
}

// SessionConfig holds token and cookie settings
type SessionConfig struct {
	JWTSecret    string
	CookieName   string
	PasswordCost int
}

// FamilyConfig holds the tenant name and master key
type FamilyConfig struct {
	Name          string
	MasterKey     string
	MasterKeyHash string
	MasterKeyCost int
}

// StoreConfig selects and sizes the membership store
type StoreConfig struct {
	// Driver is postgres, sqlite or memory
	Driver          string
	DatabaseURL     string
	Timeout         time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RateLimitConfig selects the counter backend and limiter thresholds
type RateLimitConfig struct {
	// Backend is memory or redis
	Backend       string
	RedisURL      string
	RedisPassword string
	Prefix        string
	FailOpen      bool
	SweepSchedule string
	Limiters      map[string]ratelimit.Config
}

// AvatarConfig configures presigned avatar URLs. An empty bucket disables
// presigning and avatar references are returned as stored.
type AvatarConfig struct {
	Bucket       string
	URLTTL       time.Duration
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// AuditConfig configures the security audit trail. Events always go to the
// application log; a directory additionally enables the JSON lines file.
type AuditConfig struct {
	Dir      string
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
	OTelInsecure    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Server:        loadServerConfig(),
		Session:       loadSessionConfig(),
		Family:        loadFamilyConfig(),
		Store:         loadStoreConfig(),
		RateLimit:     loadRateLimitConfig(),
		Avatar:        loadAvatarConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the environment is production-like. Cookies
// are marked Secure in production-like environments.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Environment) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		TrustedProxies:  os.Getenv("TRUSTED_PROXIES"),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		JWTSecret:    os.Getenv("JWT_SECRET"),
		CookieName:   getEnv("COOKIE_NAME", "session"),
		PasswordCost: getEnvInt("PASSWORD_BCRYPT_COST", auth.DefaultPasswordCost),
	}
}

func loadFamilyConfig() FamilyConfig {
	return FamilyConfig{
		Name:          getEnv("FAMILY_NAME", "Family"),
		MasterKey:     os.Getenv("FAMILY_MASTER_KEY"),
		MasterKeyHash: os.Getenv("FAMILY_MASTER_KEY_HASH"),
		MasterKeyCost: getEnvInt("MASTER_KEY_BCRYPT_COST", auth.MinSecretCost),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:          strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DatabaseURL:     getEnv("DATABASE_URL", "larder.db"),
		Timeout:         getEnvDuration("STORE_TIMEOUT", 3*time.Second),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	limiters := ratelimit.DefaultConfigs()
	for name, l := range limiters {
		env := "RATE_LIMIT_" + strings.ToUpper(name)
		l.Max = getEnvInt(env+"_MAX", l.Max)
		l.Window = getEnvDuration(env+"_WINDOW", l.Window)
		limiters[name] = l
	}

	return RateLimitConfig{
		Backend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Prefix:        getEnv("RATE_LIMIT_PREFIX", "ratelimit"),
		FailOpen:      getEnvBool("RATE_LIMIT_FAIL_OPEN", false),
		SweepSchedule: getEnv("RATE_LIMIT_SWEEP_SCHEDULE", "@every 1m"),
		Limiters:      limiters,
	}
}

func loadAvatarConfig() AvatarConfig {
	return AvatarConfig{
		Bucket:       os.Getenv("AVATAR_BUCKET"),
		URLTTL:       getEnvDuration("AVATAR_URL_TTL", time.Hour),
		Endpoint:     os.Getenv("S3_ENDPOINT"),
		Region:       getEnv("S3_REGION", "us-east-1"),
		AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		SecretKey:    os.Getenv("S3_SECRET_KEY"),
		UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Dir:      os.Getenv("AUDIT_LOG_DIR"),
		MaxSize:  int64(getEnvInt("AUDIT_LOG_MAX_BYTES", 100*1024*1024)),
		MaxFiles: getEnvInt("AUDIT_LOG_MAX_FILES", 10),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "larder"),
		OTelInsecure:    getEnvBool("OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if c.Session.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Session.JWTSecret) < MinProductionSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in %s", MinProductionSecretLength, c.Environment)
	}
	if c.Session.CookieName == "" {
		return errors.New("cookie name is required")
	}

	if c.Family.MasterKey == "" && c.Family.MasterKeyHash == "" {
		return errors.New("FAMILY_MASTER_KEY or FAMILY_MASTER_KEY_HASH is required")
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for %s store", c.Store.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store driver: %s (must be postgres, sqlite, or memory)", c.Store.Driver)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return errors.New("REDIS_URL is required for redis rate limiting")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}
	for _, l := range c.RateLimit.Limiters {
		if err := l.Validate(); err != nil {
			return err
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
