//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"goflare.io/issuance"
	"goflare.io/issuance/config"
	"goflare.io/issuance/coupon"
	"goflare.io/issuance/event"
	"goflare.io/issuance/handlers"
	"goflare.io/issuance/server"
)

func InitializeServer() (*server.Server, func(), error) {

	wire.Build(
		config.ProvideApplicationConfig,
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideTransactionManager,
		config.ProvideRedis,
		config.ProvideNATS,
		config.ProvideRegistry,
		config.ProvideMetrics,
		config.ProvideMonitor,
		config.ProvideGateway,
		config.ProvideWebhookProvider,
		config.ProvideRateLimiter,
		config.ProvideCouponCache,
		config.ProvideEventRepository,
		coupon.NewRepository,
		coupon.NewService,
		event.NewService,
		issuance.NewEngine,
		issuance.NewCouponIssuer,
		wire.Bind(new(issuance.Issuer), new(*issuance.CouponIssuer)),
		handlers.NewCouponHandler,
		handlers.NewWebhookHandler,
		handlers.NewHealthHandler,
		server.NewHealthServer,
		server.NewServer,
	)

	return nil, nil, nil
}
