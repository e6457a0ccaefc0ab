package config

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goflare.io/issuance/coupon"
	"goflare.io/issuance/driver"
	"goflare.io/issuance/event"
	"goflare.io/issuance/gateway"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/monitor"
	"goflare.io/issuance/ratelimit"
	"goflare.io/issuance/webhook"
)

func NewLogger(appConfig *Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if appConfig.Log.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.EncoderConfig.TimeKey = "ts"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(appConfig.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", appConfig.Log.Level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}

func ProvidePostgresConn(appConfig *Config) (driver.PostgresPool, func(), error) {
	conn, err := driver.ConnectSQL(appConfig.Postgres.URL, driver.PoolOptions{
		MaxConns:        appConfig.Postgres.MaxConns,
		MinConns:        appConfig.Postgres.MinConns,
		MaxConnLifetime: appConfig.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	return conn.Pool, conn.Pool.Close, nil
}

func ProvideTransactionManager(appConfig *Config, conn driver.PostgresPool, logger *zap.Logger) *driver.TransactionManager {
	return driver.NewTransactionManager(conn, logger,
		driver.WithTimeout(appConfig.Postgres.StoreTimeout),
		driver.WithAttempts(appConfig.Postgres.TxAttempts),
	)
}

func ProvideRedis(appConfig *Config, logger *zap.Logger) (*redis.Client, func(), error) {
	client, err := driver.ConnectRedis(appConfig.Redis.Addr, appConfig.Redis.Password, appConfig.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideNATS returns a nil connection when deliveries stay in process.
func ProvideNATS(appConfig *Config, logger *zap.Logger) (*nats.Conn, func(), error) {
	if appConfig.Events.Driver != "nats" {
		return nil, func() {}, nil
	}
	nc, err := driver.ConnectNATS(appConfig.Events.NATSURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return nc, nc.Close, nil
}

func ProvideCouponCache(appConfig *Config, client *redis.Client) coupon.Cache {
	return coupon.NewCache(client, appConfig.Redis.IssuedCacheTTL)
}

func ProvideEventRepository(appConfig *Config, client *redis.Client, logger *zap.Logger) event.Repository {
	return event.NewRepository(client, appConfig.Redis.ProcessedEventTTL, logger)
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func ProvideMonitor(appConfig *Config, logger *zap.Logger) (monitor.Sink, error) {
	return monitor.NewSink(monitor.Config{
		DSN:         appConfig.Sentry.DSN,
		Environment: appConfig.Sentry.Environment,
		SampleRate:  appConfig.Sentry.SampleRate,
	}, logger)
}

func ProvideGateway(appConfig *Config, logger *zap.Logger) (gateway.Gateway, error) {
	return gateway.New(gateway.Config{
		Provider:  appConfig.Gateway.Provider,
		KeyID:     appConfig.Gateway.KeyID,
		KeySecret: appConfig.Gateway.KeySecret,
		BaseURL:   appConfig.Gateway.BaseURL,
		Timeout:   appConfig.Gateway.Timeout,
	}, logger)
}

// ProvideWebhookProvider uses the gateway's provider for the webhook dialect.
func ProvideWebhookProvider(appConfig *Config) (webhook.Provider, error) {
	return webhook.NewProvider(strings.ToLower(appConfig.Gateway.Provider), appConfig.Webhook.Secret)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(appConfig *Config, client *redis.Client) ratelimit.Limiter {
	if !appConfig.RateLimit.Enabled {
		return nil
	}
	return ratelimit.NewSlidingWindow(client, ratelimit.Config{
		Limit:  appConfig.RateLimit.Limit,
		Window: appConfig.RateLimit.Window,
		Prefix: appConfig.RateLimit.Prefix,
	})
}
