package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"goflare.io/issuance"
	"goflare.io/issuance/config"
	"goflare.io/issuance/handlers"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/ratelimit"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	Coupon   handlers.CouponHandler
	Webhook  handlers.WebhookHandler
	Health   handlers.HealthHandler
	issuer   issuance.Issuer
	limiter  ratelimit.Limiter
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	grpc     *HealthServer
	logger   *zap.Logger
	setup    sync.Once
}

func NewServer(
	appConfig *config.Config,
	Coupon handlers.CouponHandler,
	Webhook handlers.WebhookHandler,
	Health handlers.HealthHandler,
	issuer issuance.Issuer,
	limiter ratelimit.Limiter,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	grpcHealth *HealthServer,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return &Server{
		echo:     e,
		config:   appConfig,
		Coupon:   Coupon,
		Webhook:  Webhook,
		Health:   Health,
		issuer:   issuer,
		limiter:  limiter,
		registry: registry,
		metrics:  m,
		grpc:     grpcHealth,
		logger:   logger.Named("server"),
	}
}

// Handler returns the fully configured HTTP handler.
func (s *Server) Handler() http.Handler {
	s.setup.Do(func() {
		s.registerMiddlewares()
		s.registerRoutes()
	})
	return s.echo
}

// Start registers middlewares and routes and listens on address.
func (s *Server) Start(address string) error {
	s.Handler()
	return s.echo.Start(address)
}

// Run starts the HTTP and gRPC health servers and blocks until SIGINT or SIGTERM, then shuts
// down in order: stop accepting requests, stop the health server, drain the webhook workers.
func (s *Server) Run() error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.config.Server.Address))
		if err := s.Start(s.config.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.grpc != nil {
		go func() {
			if err := s.grpc.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		s.logger.Error("Server failed", zap.Error(runErr))
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}
	s.issuer.Close()

	return runErr
}

func (s *Server) registerMiddlewares() {
	s.echo.HTTPErrorHandler = s.errorHandler

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(requestLogger(s.logger))
	s.echo.Use(middleware.Secure())

	origins := s.config.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	api.POST("/webhook", s.Webhook.HandleWebhook)

	coupons := api.Group("/coupon", rateLimit(s.limiter, s.metrics, s.logger))
	coupons.GET("/instant/:paymentId", s.Coupon.AssignInstant)
	coupons.GET("/:paymentId", s.Coupon.GetCoupon)

	s.echo.GET("/health", s.Health.Health)
	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal Server Error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}
	if code == http.StatusNotFound {
		message = "API endpoint not found"
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("Unhandled request error",
			zap.Error(err),
			zap.String("path", c.Request().URL.Path))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]any{"success": false, "message": message})
	}
	if err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}
