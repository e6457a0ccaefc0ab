package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goflare.io/issuance"
	"goflare.io/issuance/models"
)

func serveCoupon(t *testing.T, issuer *mockIssuer, path string) (*httptest.ResponseRecorder, couponResponse) {
	t.Helper()
	e := echo.New()
	h := NewCouponHandler(issuer)
	e.GET("/api/coupon/instant/:paymentId", h.AssignInstant)
	e.GET("/api/coupon/:paymentId", h.GetCoupon)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body couponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetCoupon(t *testing.T) {
	cases := []struct {
		name    string
		coupon  *models.Coupon
		err     error
		status  int
		success bool
		message string
	}{
		{"issued", &models.Coupon{Code: "A10"}, nil, http.StatusOK, true, "Coupon issued successfully!"},
		{"not found", nil, fmt.Errorf("%w: pay_1", issuance.ErrCouponNotFound), http.StatusNotFound, false,
			"Coupon not found for this payment. Please contact support if the payment was successful."},
		{"store down", nil, issuance.ErrStoreUnavailable, http.StatusServiceUnavailable, false,
			"Internal server error while retrieving coupon."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issuer := &mockIssuer{}
			issuer.On("GetIssuedCoupon", mock.Anything, "pay_1").Return(tc.coupon, tc.err)

			rec, body := serveCoupon(t, issuer, "/api/coupon/pay_1")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.success, body.Success)
			assert.Equal(t, tc.message, body.Message)
			if tc.coupon != nil {
				assert.Equal(t, tc.coupon.Code, body.Coupon)
			}
			issuer.AssertExpectations(t)
		})
	}
}

func TestAssignInstant(t *testing.T) {
	cases := []struct {
		name    string
		coupon  *models.Coupon
		already bool
		err     error
		status  int
		message string
		code    string
	}{
		{"assigned", &models.Coupon{Code: "A10"}, false, nil, http.StatusOK, "Coupon assigned instantly!", ""},
		{"replayed", &models.Coupon{Code: "A10"}, true, nil, http.StatusOK, "Coupon already assigned.", ""},
		{"not verified", nil, false, fmt.Errorf("%w: failed", issuance.ErrPaymentNotVerified), http.StatusBadRequest,
			"Invalid or incomplete payment.", ""},
		{"exhausted", nil, false, fmt.Errorf("%w: payment pay_1", issuance.ErrPoolExhausted), http.StatusInternalServerError,
			"Failed to assign coupon. Please try again later.", "pool_exhausted"},
		{"transient", nil, false, fmt.Errorf("%w: reserve: %w", issuance.ErrStoreUnavailable, errors.New("timeout")),
			http.StatusServiceUnavailable, "Coupon service is temporarily unavailable. Please try again.", "store_unavailable"},
		{"invalid id", nil, false, issuance.ErrInvalidPaymentID, http.StatusBadRequest, "Payment ID is required.", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issuer := &mockIssuer{}
			issuer.On("AssignInstant", mock.Anything, "pay_1").Return(tc.coupon, tc.already, tc.err)

			rec, body := serveCoupon(t, issuer, "/api/coupon/instant/pay_1")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.err == nil, body.Success)
			if tc.coupon != nil {
				assert.Equal(t, "A10", body.Coupon)
			}
		})
	}
}
