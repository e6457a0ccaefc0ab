package issuance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

// GetIssuedCoupon returns the issued coupon for paymentID. A coupon that is bound but not
// yet issued is reported as ErrCouponNotFound.
func (ci *CouponIssuer) GetIssuedCoupon(ctx context.Context, paymentID string) (*models.Coupon, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	if ci.cache != nil {
		code, ok, err := ci.cache.GetIssued(ctx, paymentID)
		if err != nil {
			ci.logger.Warn("Issued coupon cache unavailable", zap.String("payment_id", paymentID), zap.Error(err))
		} else if ok {
			return &models.Coupon{Code: code, PaymentID: &paymentID, Status: enum.CouponStatusIssued}, nil
		}
	}

	c, err := ci.engine.Lookup(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.Issued() {
		return nil, fmt.Errorf("%w: %s", ErrCouponNotFound, paymentID)
	}

	ci.cacheIssued(ctx, c)
	return c, nil
}

func (ci *CouponIssuer) AssignInstant(ctx context.Context, paymentID string) (*models.Coupon, bool, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, false, ErrInvalidPaymentID
	}
	logger := ci.logger.With(zap.String("payment_id", paymentID))

	gatewayCtx := ctx
	if ci.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		gatewayCtx, cancel = context.WithTimeout(ctx, ci.gatewayTimeout)
		defer cancel()
	}

	payment, err := ci.gateway.FetchPayment(gatewayCtx, paymentID)
	if err != nil {
		ci.metrics.GatewayVerification("unverified")
		logger.Warn("Payment verification failed", zap.String("gateway", ci.gateway.Name()), zap.Error(err))
		return nil, false, fmt.Errorf("%w: %w", ErrPaymentNotVerified, err)
	}
	ci.metrics.GatewayVerification(string(payment.Status))

	if _, ok := ci.acceptedStatuses[payment.Status]; !ok {
		logger.Info("Payment status does not qualify for a coupon",
			zap.String("status", string(payment.Status)),
			zap.String("raw_status", payment.RawStatus))
		return nil, false, fmt.Errorf("%w: payment %s is %s", ErrPaymentNotVerified, paymentID, payment.Status)
	}

	c, alreadyAssigned, err := ci.engine.Allocate(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}

	ci.cacheIssued(ctx, c)
	return c, alreadyAssigned, nil
}
