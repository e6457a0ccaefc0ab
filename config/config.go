package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ServerStartPort   = ":8080"
	defaultConfigFile = "./config.yaml"
	envPrefix         = "COUPON"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Events    EventsConfig    `mapstructure:"events"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	GRPCAddress     string        `mapstructure:"grpc_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	TxAttempts      int           `mapstructure:"tx_attempts"`
}

type RedisConfig struct {
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	IssuedCacheTTL    time.Duration `mapstructure:"issued_cache_ttl"`
	ProcessedEventTTL time.Duration `mapstructure:"processed_event_ttl"`
}

// EventsConfig selects the bus between webhook ingress and the workers:
// "memory" keeps deliveries in process, "nats" fans them out to every replica's queue group.
type EventsConfig struct {
	Driver  string `mapstructure:"driver"`
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type GatewayConfig struct {
	Provider         string        `mapstructure:"provider"`
	KeyID            string        `mapstructure:"key_id"`
	KeySecret        string        `mapstructure:"key_secret"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	AcceptedStatuses []string      `mapstructure:"accepted_statuses"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
	// AllocationEvents overrides the provider's default allocation-triggering event types.
	AllocationEvents []string `mapstructure:"allocation_events"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
	Prefix  string        `mapstructure:"prefix"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type WorkerConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// ProvideApplicationConfig loads ./config.yaml, or the file named by COUPON_CONFIG,
// overlaid with COUPON_* environment variables.
func ProvideApplicationConfig() (*Config, error) {
	return Load(Path())
}

// Path returns the config file named by COUPON_CONFIG, or ./config.yaml.
func Path() string {
	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		return path
	}
	return defaultConfigFile
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Read reads the config file at path without validating it. A missing file is not an error;
// defaults and the environment still apply.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ServerStartPort)
	v.SetDefault("server.grpc_address", ":9090")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("postgres.store_timeout", 3*time.Second)
	v.SetDefault("postgres.tx_attempts", 3)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.issued_cache_ttl", 30*24*time.Hour)
	v.SetDefault("redis.processed_event_ttl", 72*time.Hour)

	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject", "coupon.webhook")

	v.SetDefault("gateway.provider", "razorpay")
	v.SetDefault("gateway.key_id", "")
	v.SetDefault("gateway.key_secret", "")
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.timeout", 5*time.Second)
	v.SetDefault("gateway.accepted_statuses", []string{"authorized", "captured"})

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.allocation_events", []string{})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.limit", 5)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.prefix", "coupon:ratelimit:")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("worker.workers", 10)
	v.SetDefault("worker.queue_size", 1000)
	v.SetDefault("worker.process_timeout", 30*time.Second)
}

// Validate fails fast on settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.URL == "" {
		errs = append(errs, errors.New("postgres.url is required"))
	}
	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("webhook.secret is required"))
	}
	switch strings.ToLower(c.Gateway.Provider) {
	case "razorpay":
		if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
			errs = append(errs, errors.New("gateway.key_id and gateway.key_secret are required"))
		}
	case "stripe":
		if c.Gateway.KeySecret == "" {
			errs = append(errs, errors.New("gateway.key_secret is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.provider %q is not supported", c.Gateway.Provider))
	}
	switch c.Events.Driver {
	case "memory", "nats":
	default:
		errs = append(errs, fmt.Errorf("events.driver %q is not supported", c.Events.Driver))
	}
	if c.Worker.Workers <= 0 || c.Worker.QueueSize <= 0 {
		errs = append(errs, errors.New("worker.workers and worker.queue_size must be positive"))
	}
	if len(c.Gateway.AcceptedStatuses) == 0 {
		errs = append(errs, errors.New("gateway.accepted_statuses must not be empty"))
	}
	return errors.Join(errs...)
}
