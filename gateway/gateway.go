// Package gateway fetches payments from the payment provider for synchronous verification.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"goflare.io/issuance/models"
)

var ErrPaymentNotFound = errors.New("payment not found at gateway")

// Gateway is the payment provider's read API.
type Gateway interface {
	Name() string
	FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

type Config struct {
	Provider  string
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

func New(cfg Config, logger *zap.Logger) (Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "razorpay":
		if cfg.KeyID == "" || cfg.KeySecret == "" {
			return nil, errors.New("razorpay key id and secret are required")
		}
		return NewRazorpay(cfg, logger), nil
	case "stripe":
		if cfg.KeySecret == "" {
			return nil, errors.New("stripe secret key is required")
		}
		return NewStripe(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
