package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/issuance/config"
	"goflare.io/issuance/coupon"
	"goflare.io/issuance/event"
	"goflare.io/issuance/gateway"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
	"goflare.io/issuance/monitor"
	"goflare.io/issuance/webhook"
)

const defaultCloseTimeout = 10 * time.Second

var _ Issuer = (*CouponIssuer)(nil)

type CouponIssuer struct {
	engine       *Engine
	coupons      coupon.Service
	cache        coupon.Cache
	event        event.Service
	gateway      gateway.Gateway
	provider     webhook.Provider
	eventManager *EventManager
	dispatcher   *Dispatcher
	sink         monitor.Sink
	metrics      *metrics.Metrics
	logger       *zap.Logger

	acceptedStatuses map[enum.PaymentStatus]struct{}
	gatewayTimeout   time.Duration
	closeTimeout     time.Duration
}

// NewCouponIssuer wires the engine to both confirmation paths and starts the webhook workers.
// natsConn may be nil, in which case deliveries stay in process.
func NewCouponIssuer(appConfig *config.Config,
	engine *Engine,
	coupons coupon.Service,
	cache coupon.Cache,
	events event.Service,
	gw gateway.Gateway,
	provider webhook.Provider,
	natsConn *nats.Conn,
	sink monitor.Sink,
	m *metrics.Metrics,
	logger *zap.Logger) (*CouponIssuer, error) {

	accepted := make(map[enum.PaymentStatus]struct{}, len(appConfig.Gateway.AcceptedStatuses))
	for _, raw := range appConfig.Gateway.AcceptedStatuses {
		status := enum.ParsePaymentStatus(raw)
		if status == enum.PaymentStatusUnknown {
			return nil, fmt.Errorf("unknown accepted payment status %q", raw)
		}
		accepted[status] = struct{}{}
	}

	ci := &CouponIssuer{
		engine:           engine,
		coupons:          coupons,
		cache:            cache,
		event:            events,
		gateway:          gw,
		provider:         provider,
		sink:             sink,
		metrics:          m,
		logger:           logger.Named("issuer"),
		acceptedStatuses: accepted,
		gatewayTimeout:   appConfig.Gateway.Timeout,
		closeTimeout:     appConfig.Server.ShutdownTimeout,
	}
	if ci.closeTimeout <= 0 {
		ci.closeTimeout = defaultCloseTimeout
	}

	ci.eventManager = NewEventManager(natsConn, appConfig.Events.Subject, logger)
	ci.dispatcher = NewDispatcher(appConfig.Worker.Workers, appConfig.Worker.QueueSize,
		appConfig.Worker.ProcessTimeout, ci.ProcessDelivery, logger)

	allocationEvents := appConfig.Webhook.AllocationEvents
	if len(allocationEvents) == 0 {
		allocationEvents = provider.AllocationEvents()
	}
	// 註冊事件處理器
	ci.registerEventHandlers(allocationEvents)

	m.RegisterQueueDepth(ci.dispatcher.QueueLength)
	ci.dispatcher.Run()

	if err := ci.eventManager.SubscribeToDeliveries(func(d *models.Delivery) { ci.enqueue(d) }); err != nil {
		_ = ci.dispatcher.Stop(context.Background())
		return nil, err
	}

	ci.logger.Info("coupon issuer started",
		zap.String("provider", provider.Name()),
		zap.Strings("allocation_events", allocationEvents),
		zap.Bool("nats", ci.eventManager.Remote()))
	return ci, nil
}

func (ci *CouponIssuer) AllocateForPayment(ctx context.Context, paymentID string) (*models.Coupon, error) {
	return ci.engine.AllocateForPayment(ctx, paymentID)
}

func (ci *CouponIssuer) PoolStats(ctx context.Context) (*models.PoolStats, error) {
	stats, err := ci.coupons.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return stats, nil
}

func (ci *CouponIssuer) Provider() string {
	return ci.provider.Name()
}

func (ci *CouponIssuer) SignatureHeader() string {
	return ci.provider.SignatureHeader()
}

func (ci *CouponIssuer) VerifyWebhook(payload []byte, signature string) error {
	if err := ci.provider.Verify(payload, signature); err != nil {
		ci.metrics.WebhookDelivery(metrics.WebhookRejected)
		ci.logger.Warn("Rejected webhook with invalid signature", zap.String("provider", ci.provider.Name()))
		return err
	}
	return nil
}

func (ci *CouponIssuer) SubmitWebhook(delivery *models.Delivery) {
	if ci.eventManager.Remote() {
		err := ci.eventManager.PublishDelivery(delivery)
		if err == nil {
			ci.metrics.WebhookDelivery(metrics.WebhookAccepted)
			return
		}
		ci.logger.Warn("Failed to publish delivery to NATS, processing locally", zap.Error(err))
	}

	if ci.enqueue(delivery) {
		ci.metrics.WebhookDelivery(metrics.WebhookAccepted)
	}
}

// enqueue escalates a dropped delivery; the gateway has already been acknowledged.
func (ci *CouponIssuer) enqueue(delivery *models.Delivery) bool {
	if err := ci.dispatcher.Submit(delivery); err != nil {
		ci.metrics.WebhookDelivery(metrics.WebhookQueueFull)
		ci.sink.Capture(context.Background(), fmt.Errorf("webhook delivery dropped: %w", err),
			zap.String("provider", delivery.Provider),
			zap.Int("queued", ci.dispatcher.QueueLength()))
		return false
	}
	return true
}

// ProcessDelivery parses a verified delivery and runs its handler. Failures are escalated to
// the monitoring sink here because there is no caller left to report to.
func (ci *CouponIssuer) ProcessDelivery(ctx context.Context, delivery *models.Delivery) error {
	paymentEvent, err := ci.provider.Parse(delivery.Payload, delivery.Header)
	if err != nil {
		ci.metrics.WebhookEvent(metrics.EventTypeUnparsed, metrics.WebhookFailed)
		ci.sink.Capture(ctx, fmt.Errorf("parse webhook: %w", err), zap.String("provider", delivery.Provider))
		return err
	}

	logger := ci.logger.With(
		zap.String("event_id", paymentEvent.ID),
		zap.String("event_type", paymentEvent.Type),
		zap.String("payment_id", paymentEvent.PaymentID))

	if ci.event != nil {
		processed, err := ci.event.IsEventProcessed(ctx, paymentEvent.ID)
		if err != nil {
			logger.Warn("Failed to check processed marker", zap.Error(err))
		} else if processed {
			ci.metrics.WebhookEvent(ci.eventManager.MetricLabel(paymentEvent.Type), metrics.WebhookDuplicate)
			logger.Info("Event is already processed")
			return nil
		}
	}

	err = ci.ProcessEvent(ctx, paymentEvent)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnrecognizedEvent):
		logger.Info("No handler registered for event type")
		return nil
	case errors.Is(err, ErrPoolExhausted):
		// the engine has already escalated exhaustion
		return err
	default:
		ci.sink.Capture(ctx, fmt.Errorf("process webhook event: %w", err),
			zap.String("event_id", paymentEvent.ID),
			zap.String("event_type", paymentEvent.Type),
			zap.String("payment_id", paymentEvent.PaymentID))
		return err
	}
}

func (ci *CouponIssuer) cacheIssued(ctx context.Context, c *models.Coupon) {
	if ci.cache == nil || c == nil || !c.Issued() || c.PaymentID == nil {
		return
	}
	if err := ci.cache.SetIssued(ctx, *c.PaymentID, c.Code); err != nil {
		ci.logger.Warn("Failed to cache issued coupon", zap.String("payment_id", *c.PaymentID), zap.Error(err))
	}
}

func (ci *CouponIssuer) Close() {
	ci.logger.Info("Initiating graceful shutdown of workers and dispatcher")
	ci.eventManager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), ci.closeTimeout)
	defer cancel()
	if err := ci.dispatcher.Stop(ctx); err != nil {
		ci.logger.Error("Webhook workers did not drain in time", zap.Error(err),
			zap.Int("queued", ci.dispatcher.QueueLength()))
	}

	ci.sink.Flush()
	ci.logger.Info("CouponIssuer successfully shutdown")
}
