package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"goflare.io/issuance"
	"goflare.io/issuance/models"
)

var _ issuance.Issuer = (*mockIssuer)(nil)

type mockIssuer struct {
	mock.Mock
}

func (m *mockIssuer) AllocateForPayment(ctx context.Context, paymentID string) (*models.Coupon, error) {
	args := m.Called(ctx, paymentID)
	c, _ := args.Get(0).(*models.Coupon)
	return c, args.Error(1)
}

func (m *mockIssuer) GetIssuedCoupon(ctx context.Context, paymentID string) (*models.Coupon, error) {
	args := m.Called(ctx, paymentID)
	c, _ := args.Get(0).(*models.Coupon)
	return c, args.Error(1)
}

func (m *mockIssuer) AssignInstant(ctx context.Context, paymentID string) (*models.Coupon, bool, error) {
	args := m.Called(ctx, paymentID)
	c, _ := args.Get(0).(*models.Coupon)
	return c, args.Bool(1), args.Error(2)
}

func (m *mockIssuer) PoolStats(ctx context.Context) (*models.PoolStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.PoolStats)
	return s, args.Error(1)
}

func (m *mockIssuer) Provider() string { return "razorpay" }

func (m *mockIssuer) SignatureHeader() string { return "X-Razorpay-Signature" }

func (m *mockIssuer) VerifyWebhook(payload []byte, signature string) error {
	return m.Called(payload, signature).Error(0)
}

func (m *mockIssuer) SubmitWebhook(delivery *models.Delivery) {
	m.Called(delivery)
}

func (m *mockIssuer) ProcessDelivery(ctx context.Context, delivery *models.Delivery) error {
	return m.Called(ctx, delivery).Error(0)
}

func (m *mockIssuer) Close() {}
