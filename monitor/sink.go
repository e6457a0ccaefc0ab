// Package monitor escalates errors that cannot be returned to a caller, such as failures in
// webhook processing after the gateway has been acknowledged.
package monitor

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const flushTimeout = 2 * time.Second

// Sink receives errors for out-of-band escalation. Capture must not block the caller.
type Sink interface {
	Capture(ctx context.Context, err error, fields ...zap.Field)
	Flush()
}

type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// NewSink returns a Sentry-backed sink when a DSN is configured and a log-only sink otherwise.
// Both log every captured error.
func NewSink(cfg Config, logger *zap.Logger) (Sink, error) {
	logger = logger.Named("monitor")
	if cfg.DSN == "" {
		return &logSink{logger: logger}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  sampleRate,
	})
	if err != nil {
		return nil, err
	}

	return &sentrySink{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: logger,
	}, nil
}

type logSink struct {
	logger *zap.Logger
}

func (s *logSink) Capture(_ context.Context, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	s.logger.Error("captured error", append(fields, zap.Error(err))...)
}

func (s *logSink) Flush() {}

type sentrySink struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// Capture hands the error to the Sentry transport, which sends asynchronously.
func (s *sentrySink) Capture(_ context.Context, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	s.logger.Error("captured error", append(fields, zap.Error(err))...)

	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range fieldMap(fields) {
			scope.SetTag(key, value)
		}
		hub.CaptureException(err)
	})
}

func (s *sentrySink) Flush() {
	s.hub.Flush(flushTimeout)
}

func fieldMap(fields []zap.Field) map[string]string {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	out := make(map[string]string, len(enc.Fields))
	for k, v := range enc.Fields {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
