package server

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"goflare.io/issuance/config"
	"goflare.io/issuance/driver"
)

// ServiceName is the gRPC health service name reported alongside the overall status.
const ServiceName = "coupon.Issuance"

const (
	healthCheckInterval = 10 * time.Second
	healthCheckTimeout  = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves grpc.health.v1.Health, SERVING while the database answers pings.
type HealthServer struct {
	address  string
	server   *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func NewHealthServer(appConfig *config.Config, conn driver.PostgresPool, logger *zap.Logger) *HealthServer {
	return newHealthServer(appConfig.Server.GRPCAddress, conn, healthCheckInterval, logger)
}

func newHealthServer(address string, pinger Pinger, interval time.Duration, logger *zap.Logger) *HealthServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		address:  address,
		server:   srv,
		health:   hs,
		pinger:   pinger,
		interval: interval,
		stop:     make(chan struct{}),
		logger:   logger.Named("grpc.health"),
	}
}

func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.address)
	if err != nil {
		return err
	}
	h.logger.Info("gRPC health server listening", zap.String("address", h.address))
	return h.Serve(lis)
}

func (h *HealthServer) Serve(lis net.Listener) error {
	h.check()
	go h.watch()
	return h.server.Serve(lis)
}

func (h *HealthServer) watch() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.check()
		case <-h.stop:
			return
		}
	}
}

func (h *HealthServer) check() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("Database ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

func (h *HealthServer) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.health.Shutdown()
		h.server.GracefulStop()
	})
}
