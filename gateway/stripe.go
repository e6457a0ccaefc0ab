package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

type Stripe struct {
	client *client.API
	logger *zap.Logger
}

func NewStripe(cfg Config, logger *zap.Logger) *Stripe {
	var backends *stripe.Backends
	if cfg.BaseURL != "" {
		backends = stripe.NewBackends(nil)
		backends.API = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(cfg.BaseURL),
		})
	}
	return &Stripe{
		client: client.New(cfg.KeySecret, backends),
		logger: logger.Named("gateway.stripe"),
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(paymentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to get Stripe payment intent: %w", err)
	}

	return &models.Payment{
		ID:        pi.ID,
		Status:    StripeStatus(pi.Status),
		Amount:    pi.Amount,
		RawStatus: string(pi.Status),
	}, nil
}

// StripeStatus maps a payment intent status onto the gateway-neutral lifecycle.
func StripeStatus(status stripe.PaymentIntentStatus) enum.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return enum.PaymentStatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return enum.PaymentStatusCaptured
	case stripe.PaymentIntentStatusCanceled:
		return enum.PaymentStatusFailed
	case stripe.PaymentIntentStatusProcessing:
		return enum.PaymentStatusPending
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction:
		return enum.PaymentStatusCreated
	}
	return enum.PaymentStatusUnknown
}
