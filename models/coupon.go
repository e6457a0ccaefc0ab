package models

import (
	"time"

	"goflare.io/issuance/models/enum"
)

// Coupon 代表券池中的一張優惠券
type Coupon struct {
	ID        int64             `json:"id"`
	Code      string            `json:"code"`
	PaymentID *string           `json:"payment_id,omitempty"`
	Status    enum.CouponStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	IssuedAt  *time.Time        `json:"issued_at,omitempty"`
}

// Issued reports whether the coupon reached its terminal state.
func (c *Coupon) Issued() bool {
	return c.Status == enum.CouponStatusIssued
}

// BoundTo reports whether the coupon is bound to paymentID.
func (c *Coupon) BoundTo(paymentID string) bool {
	return c.PaymentID != nil && *c.PaymentID == paymentID
}

// PoolStats counts the coupons in each lifecycle state.
type PoolStats struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Issued    int64 `json:"issued"`
}

func (s PoolStats) Total() int64 {
	return s.Available + s.Reserved + s.Issued
}
