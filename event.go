package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/issuance/metrics"
	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
	"goflare.io/issuance/webhook"
)

const deliveryQueueGroup = "coupon-issuance"

type EventHandler func(context.Context, *models.PaymentEvent) error

// EventManager routes parsed events to handlers by type and, when NATS is configured,
// carries raw deliveries between replicas.
type EventManager struct {
	natsConn *nats.Conn
	subject  string
	handlers map[string]EventHandler
	sub      *nats.Subscription
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, subject string, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		subject:  subject,
		handlers: make(map[string]EventHandler),
		logger:   logger.Named("events"),
	}
}

func (em *EventManager) RegisterHandler(eventType string, handler EventHandler) {
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType string) (EventHandler, bool) {
	handler, exists := em.handlers[eventType]
	return handler, exists
}

// MetricLabel returns eventType when a handler is registered for it, so gateway-supplied
// types cannot grow the label set.
func (em *EventManager) MetricLabel(eventType string) string {
	if _, exists := em.handlers[eventType]; exists {
		return eventType
	}
	return metrics.EventTypeUnrecognized
}

// Remote reports whether deliveries travel over NATS.
func (em *EventManager) Remote() bool {
	return em.natsConn != nil
}

func (em *EventManager) PublishDelivery(delivery *models.Delivery) error {
	if em.natsConn == nil {
		return errors.New("nats is not configured")
	}
	data, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	return em.natsConn.Publish(fmt.Sprintf("%s.%s", em.subject, delivery.Provider), data)
}

// SubscribeToDeliveries feeds deliveries from NATS into submit. Replicas share one queue
// group so each delivery is processed once per publish.
func (em *EventManager) SubscribeToDeliveries(submit func(*models.Delivery)) error {
	if em.natsConn == nil {
		return nil
	}
	sub, err := em.natsConn.QueueSubscribe(em.subject+".>", deliveryQueueGroup, func(msg *nats.Msg) {
		var delivery models.Delivery
		if err := json.Unmarshal(msg.Data, &delivery); err != nil {
			em.logger.Error("Failed to unmarshal delivery", zap.Error(err), zap.String("subject", msg.Subject))
			return
		}

		submit(&delivery)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", em.subject, err)
	}
	em.sub = sub
	return nil
}

func (em *EventManager) Close() {
	if em.sub != nil {
		if err := em.sub.Drain(); err != nil {
			em.logger.Warn("failed to drain subscription", zap.Error(err))
		}
	}
}

func (ci *CouponIssuer) registerEventHandlers(allocationEvents []string) {
	for _, eventType := range ci.provider.InformationalEvents() {
		ci.eventManager.RegisterHandler(eventType, ci.handleInformationalEvent)
	}

	// 觸發發券的事件類型，覆寫同名的資訊事件
	for _, eventType := range allocationEvents {
		ci.eventManager.RegisterHandler(eventType, ci.handleAllocationEvent)
	}
}

func (ci *CouponIssuer) handleAllocationEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event.PaymentID == "" {
		return fmt.Errorf("%w: %s event without payment id", webhook.ErrMalformedPayload, event.Type)
	}

	issued, err := ci.engine.AllocateForPayment(ctx, event.PaymentID)
	if err != nil {
		return err
	}

	ci.cacheIssued(ctx, issued)
	ci.logger.Info("Coupon assigned from webhook",
		zap.String("event_type", event.Type),
		zap.String("payment_id", event.PaymentID),
		zap.String("coupon_code", issued.Code))
	return nil
}

func (ci *CouponIssuer) handleInformationalEvent(_ context.Context, event *models.PaymentEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.Type),
		zap.String("payment_id", event.PaymentID),
		zap.String("status", string(event.Status)),
	}
	switch event.Status {
	case enum.PaymentStatusFailed:
		ci.logger.Info("Payment failed", fields...)
	case enum.PaymentStatusRefunded:
		ci.logger.Info("Payment refunded, issued coupon is kept", fields...)
	default:
		ci.logger.Info("Payment event received", fields...)
	}
	return nil
}

// ProcessEvent runs the handler registered for event.Type.
func (ci *CouponIssuer) ProcessEvent(ctx context.Context, event *models.PaymentEvent) error {
	handler, exists := ci.eventManager.GetHandler(event.Type)
	if !exists {
		ci.metrics.WebhookEvent(metrics.EventTypeUnrecognized, metrics.WebhookIgnored)
		return fmt.Errorf("%w: %s", ErrUnrecognizedEvent, event.Type)
	}

	if err := handler(ctx, event); err != nil {
		ci.metrics.WebhookEvent(event.Type, metrics.WebhookFailed)
		return err
	}

	if ci.event != nil {
		if err := ci.event.MarkEventAsProcessed(ctx, event.ID); err != nil {
			ci.logger.Warn("Failed to mark event as processed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	ci.metrics.WebhookEvent(event.Type, metrics.WebhookProcessed)
	return nil
}
