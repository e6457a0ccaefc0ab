package issuance

import (
	"context"

	"goflare.io/issuance/models"
)

type Issuer interface {
	AllocateForPayment(ctx context.Context, paymentID string) (*models.Coupon, error)

	GetIssuedCoupon(ctx context.Context, paymentID string) (*models.Coupon, error)
	// AssignInstant verifies the payment with the gateway before allocating. The bool reports
	// whether the coupon was already assigned.
	AssignInstant(ctx context.Context, paymentID string) (*models.Coupon, bool, error)
	PoolStats(ctx context.Context) (*models.PoolStats, error)

	// Provider names the webhook dialect, e.g. "razorpay".
	Provider() string
	SignatureHeader() string
	VerifyWebhook(payload []byte, signature string) error
	// SubmitWebhook queues a verified delivery and returns immediately.
	SubmitWebhook(delivery *models.Delivery)
	ProcessDelivery(ctx context.Context, delivery *models.Delivery) error

	Close()
}
