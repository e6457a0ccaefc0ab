package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	stripewebhook "github.com/stripe/stripe-go/v79/webhook"

	"goflare.io/issuance/gateway"
	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

const StripeSignatureHeader = "Stripe-Signature"

type Stripe struct {
	secret string
}

func NewStripe(secret string) *Stripe {
	return &Stripe{secret: secret}
}

func (s *Stripe) Name() string { return ProviderStripe }

func (s *Stripe) SignatureHeader() string { return StripeSignatureHeader }

func (s *Stripe) Verify(payload []byte, signature string) error {
	if signature == "" {
		return ErrSignatureInvalid
	}
	if err := stripewebhook.ValidatePayload(payload, signature, s.secret); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return nil
}

func (s *Stripe) Parse(payload []byte, _ map[string]string) (*models.PaymentEvent, error) {
	var stripeEvent stripe.Event
	if err := json.Unmarshal(payload, &stripeEvent); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if stripeEvent.Type == "" || stripeEvent.Data == nil {
		return nil, fmt.Errorf("%w: missing event type or data", ErrMalformedPayload)
	}

	event := &models.PaymentEvent{
		ID:       stripeEvent.ID,
		Type:     string(stripeEvent.Type),
		Provider: ProviderStripe,
		Status:   enum.PaymentStatusUnknown,
	}

	switch {
	case strings.HasPrefix(event.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvent.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		event.PaymentID = pi.ID
		event.Status = gateway.StripeStatus(pi.Status)
	case strings.HasPrefix(event.Type, "charge."):
		var charge stripe.Charge
		if err := json.Unmarshal(stripeEvent.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if charge.PaymentIntent != nil {
			event.PaymentID = charge.PaymentIntent.ID
		}
		if charge.Refunded {
			event.Status = enum.PaymentStatusRefunded
		}
	}
	return event, nil
}

func (s *Stripe) AllocationEvents() []string {
	return []string{string(stripe.EventTypePaymentIntentAmountCapturableUpdated)}
}

func (s *Stripe) InformationalEvents() []string {
	return []string{
		string(stripe.EventTypePaymentIntentSucceeded),
		string(stripe.EventTypePaymentIntentPaymentFailed),
		string(stripe.EventTypeChargeRefunded),
	}
}
