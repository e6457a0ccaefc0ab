package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"goflare.io/issuance/models/enum"
)

func newTestRazorpay(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Razorpay {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRazorpay(Config{
		KeyID:     "rzp_key",
		KeySecret: "rzp_secret",
		BaseURL:   srv.URL,
		Timeout:   timeout,
	}, zaptest.NewLogger(t))
}

func TestRazorpayFetchPayment(t *testing.T) {
	gw := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"captured","amount":50000}`))
	}, time.Second)

	p, err := gw.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", p.ID)
	assert.Equal(t, enum.PaymentStatusCaptured, p.Status)
	assert.Equal(t, int64(50000), p.Amount)
}

func TestRazorpayFetchPaymentNotFound(t *testing.T) {
	gw := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
	}, time.Second)

	_, err := gw.FetchPayment(context.Background(), "pay_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRazorpayFetchPaymentServerError(t *testing.T) {
	gw := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, time.Second)

	_, err := gw.FetchPayment(context.Background(), "pay_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaymentNotFound)
}

func TestRazorpayFetchPaymentTimeout(t *testing.T) {
	gw := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, 50*time.Millisecond)

	_, err := gw.FetchPayment(context.Background(), "pay_1")
	assert.Error(t, err)
}

func TestNewGateway(t *testing.T) {
	_, err := New(Config{Provider: "razorpay"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	gw, err := New(Config{KeyID: "k", KeySecret: "s"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "razorpay", gw.Name())

	gw, err = New(Config{Provider: "stripe", KeySecret: "sk_test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Name())

	_, err = New(Config{Provider: "paypal"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
