package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Log         LogConfig         `json:"log" yaml:"log"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Security    SecurityConfig    `json:"security" yaml:"security"`
	RateLimit   RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
	Auth        AuthConfig        `json:"auth" yaml:"auth"`
	Payment     PaymentConfig     `json:"payment" yaml:"payment"`
	Negotiation NegotiationConfig `json:"negotiation" yaml:"negotiation"`
	Scheduler   SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Notify      NotifyConfig      `json:"notify" yaml:"notify"`
	History     HistoryConfig     `json:"history" yaml:"history"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Features    FeaturesConfig    `json:"features" yaml:"features"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string   `json:"port" yaml:"port"`
	Host            string   `json:"host" yaml:"host"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// DatabaseConfig selects the SQL driver and pool limits.
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver"` // sqlite3 or postgres
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size" yaml:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" yaml:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Rate    int  `json:"rate" yaml:"rate"`
	Window  int  `json:"window" yaml:"window"` // in seconds
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
}

// PaymentConfig configures verification of provider webhooks.
type PaymentConfig struct {
	WebhookSecret string   `json:"webhook_secret" yaml:"webhook_secret"`
	Tolerance     Duration `json:"tolerance" yaml:"tolerance"`
}

// NegotiationConfig holds the business constants of the offer workflow.
type NegotiationConfig struct {
	PriceLockTTL   Duration `json:"price_lock_ttl" yaml:"price_lock_ttl"`
	RejectCooldown Duration `json:"reject_cooldown" yaml:"reject_cooldown"`
	BlockThreshold int      `json:"block_threshold" yaml:"block_threshold"`
	BlockDuration  Duration `json:"block_duration" yaml:"block_duration"`
}

type SchedulerConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	ReaperInterval   Duration `json:"reaper_interval" yaml:"reaper_interval"`
	DeliveryInterval Duration `json:"delivery_interval" yaml:"delivery_interval"`
	DeliverAfter     Duration `json:"deliver_after" yaml:"deliver_after"`
}

// CacheConfig selects the webhook dedupe cache. Empty RedisAddr means in-memory.
type CacheConfig struct {
	RedisAddr     string   `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string   `json:"redis_password" yaml:"redis_password"`
	RedisDB       int      `json:"redis_db" yaml:"redis_db"`
	DedupeTTL     Duration `json:"dedupe_ttl" yaml:"dedupe_ttl"`
}

// NotifyConfig selects the notification transport. Empty Brokers means log only.
type NotifyConfig struct {
	KafkaBrokers string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string `json:"kafka_topic" yaml:"kafka_topic"`
	MaxAttempts  int    `json:"max_attempts" yaml:"max_attempts"`
}

// HistoryConfig enables the MongoDB status history recorder when MongoURI is set.
type HistoryConfig struct {
	MongoURI   string `json:"mongo_uri" yaml:"mongo_uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Environment string `json:"environment" yaml:"environment"`
}

// FeaturesConfig seeds the runtime feature flags.
type FeaturesConfig struct {
	AutoBlock     bool `json:"auto_block" yaml:"auto_block"`
	WebhookDedupe bool `json:"webhook_dedupe" yaml:"webhook_dedupe"`
	Notifications bool `json:"notifications" yaml:"notifications"`
	DeliverySweep bool `json:"delivery_sweep" yaml:"delivery_sweep"`
}

// Duration accepts "48h"-style strings in JSON and YAML files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// plain numbers are seconds
		var secs int64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if secs, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			DSN:          "./kisan_choice.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 1 << 20,
			AllowedOrigins:     "*",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Auth: AuthConfig{Issuer: "kisan-choice"},
		Payment: PaymentConfig{
			Tolerance: Duration{5 * time.Minute},
		},
		Negotiation: NegotiationConfig{
			PriceLockTTL:   Duration{48 * time.Hour},
			RejectCooldown: Duration{24 * time.Hour},
			BlockThreshold: 3,
			BlockDuration:  Duration{30 * 24 * time.Hour},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			ReaperInterval:   Duration{24 * time.Hour},
			DeliveryInterval: Duration{24 * time.Hour},
			DeliverAfter:     Duration{48 * time.Hour},
		},
		Cache: CacheConfig{DedupeTTL: Duration{72 * time.Hour}},
		Notify: NotifyConfig{
			KafkaTopic:  "kisan-notifications",
			MaxAttempts: 3,
		},
		History: HistoryConfig{
			Database:   "kisan_choice",
			Collection: "history_status",
		},
		Tracing: TracingConfig{
			ServiceName: "kisan-choice-api",
			Environment: "development",
		},
		Features: FeaturesConfig{
			AutoBlock:     true,
			WebhookDedupe: true,
			Notifications: true,
			DeliverySweep: true,
		},
	}
}

// LoadConfig loads defaults, then the optional config file, then environment variables.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

// loadFromFile loads configuration from a JSON or YAML file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = getEnvBool("LOG_PRETTY", cfg.Log.Pretty)

	cfg.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = getEnvInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Security.MaxRequestBodySize = getEnvInt64("MAX_REQUEST_BODY_SIZE", cfg.Security.MaxRequestBodySize)
	cfg.Security.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.Security.AllowedOrigins)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Rate = getEnvInt("RATE_LIMIT_RATE", cfg.RateLimit.Rate)
	cfg.RateLimit.Window = getEnvInt("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Payment.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", cfg.Payment.WebhookSecret)

	cfg.Negotiation.PriceLockTTL = getEnvDuration("NEGOTIATION_PRICE_LOCK_TTL", cfg.Negotiation.PriceLockTTL)
	cfg.Negotiation.RejectCooldown = getEnvDuration("NEGOTIATION_REJECT_COOLDOWN", cfg.Negotiation.RejectCooldown)
	cfg.Negotiation.BlockThreshold = getEnvInt("NEGOTIATION_BLOCK_THRESHOLD", cfg.Negotiation.BlockThreshold)
	cfg.Negotiation.BlockDuration = getEnvDuration("NEGOTIATION_BLOCK_DURATION", cfg.Negotiation.BlockDuration)

	cfg.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", cfg.Scheduler.Enabled)
	cfg.Scheduler.ReaperInterval = getEnvDuration("SCHEDULER_REAPER_INTERVAL", cfg.Scheduler.ReaperInterval)
	cfg.Scheduler.DeliveryInterval = getEnvDuration("SCHEDULER_DELIVERY_INTERVAL", cfg.Scheduler.DeliveryInterval)

	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.Notify.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.Notify.KafkaBrokers)
	cfg.Notify.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Notify.KafkaTopic)

	cfg.History.MongoURI = getEnv("MONGO_URI", cfg.History.MongoURI)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Tracing.Endpoint)
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration{d}
		}
	}
	return defaultValue
}

// Brokers splits the comma-separated broker list.
func (n NotifyConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(n.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Origins splits the comma-separated CORS origin list.
func (s SecurityConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.Negotiation.PriceLockTTL.Duration <= 0 {
		return fmt.Errorf("negotiation price lock ttl must be positive")
	}
	if c.Negotiation.RejectCooldown.Duration < 0 {
		return fmt.Errorf("negotiation reject cooldown cannot be negative")
	}
	if c.Negotiation.BlockThreshold <= 0 {
		return fmt.Errorf("negotiation block threshold must be positive")
	}
	if c.Negotiation.BlockDuration.Duration <= 0 {
		return fmt.Errorf("negotiation block duration must be positive")
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.ReaperInterval.Duration <= 0 || c.Scheduler.DeliveryInterval.Duration <= 0 {
			return fmt.Errorf("scheduler intervals must be positive")
		}
	}
	if c.Notify.MaxAttempts <= 0 {
		return fmt.Errorf("notify max attempts must be positive")
	}
	return nil
}
