// Package webhook authenticates and parses payment gateway notifications.
package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"goflare.io/issuance/models"
)

var (
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

// Provider is one gateway's webhook dialect.
type Provider interface {
	Name() string
	// SignatureHeader is the request header carrying the signature.
	SignatureHeader() string
	// Verify authenticates the exact raw request body.
	Verify(payload []byte, signature string) error
	// Parse decodes a verified payload. header holds the request headers, first value per key.
	Parse(payload []byte, header map[string]string) (*models.PaymentEvent, error)
	// AllocationEvents are the event types that confirm a payment by default.
	AllocationEvents() []string
	// InformationalEvents are recognised event types that never allocate.
	InformationalEvents() []string
}

func NewProvider(name, secret string) (Provider, error) {
	if secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	switch strings.ToLower(name) {
	case "", ProviderRazorpay:
		return NewRazorpay(secret), nil
	case ProviderStripe:
		return NewStripe(secret), nil
	default:
		return nil, fmt.Errorf("unknown webhook provider %q", name)
	}
}

func headerValue(header map[string]string, key string) string {
	if v, ok := header[key]; ok {
		return v
	}
	if v, ok := header[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	for k, v := range header {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
