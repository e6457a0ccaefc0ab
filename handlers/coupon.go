package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/issuance"
)

type couponResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Coupon  string `json:"coupon,omitempty"`
	Code    string `json:"code,omitempty"`
}

type CouponHandler interface {
	GetCoupon(c echo.Context) error
	AssignInstant(c echo.Context) error
}

type couponHandler struct {
	Issuer issuance.Issuer
}

func NewCouponHandler(
	Issuer issuance.Issuer,
) CouponHandler {
	return &couponHandler{
		Issuer: Issuer,
	}
}

// GetCoupon handles GET /api/coupon/:paymentId
func (ch *couponHandler) GetCoupon(c echo.Context) error {
	coupon, err := ch.Issuer.GetIssuedCoupon(c.Request().Context(), c.Param("paymentId"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, couponResponse{
			Success: true,
			Message: "Coupon issued successfully!",
			Coupon:  coupon.Code,
		})
	case errors.Is(err, issuance.ErrInvalidPaymentID):
		return c.JSON(http.StatusBadRequest, couponResponse{Message: "Payment ID is required."})
	case errors.Is(err, issuance.ErrCouponNotFound):
		return c.JSON(http.StatusNotFound, couponResponse{
			Message: "Coupon not found for this payment. Please contact support if the payment was successful.",
		})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusServiceUnavailable, couponResponse{
			Message: "Internal server error while retrieving coupon.",
			Code:    "store_unavailable",
		})
	}
}

// AssignInstant handles GET /api/coupon/instant/:paymentId
func (ch *couponHandler) AssignInstant(c echo.Context) error {
	coupon, alreadyAssigned, err := ch.Issuer.AssignInstant(c.Request().Context(), c.Param("paymentId"))
	switch {
	case err == nil:
		message := "Coupon assigned instantly!"
		if alreadyAssigned {
			message = "Coupon already assigned."
		}
		return c.JSON(http.StatusOK, couponResponse{Success: true, Message: message, Coupon: coupon.Code})
	case errors.Is(err, issuance.ErrInvalidPaymentID):
		return c.JSON(http.StatusBadRequest, couponResponse{Message: "Payment ID is required."})
	case errors.Is(err, issuance.ErrPaymentNotVerified):
		return c.JSON(http.StatusBadRequest, couponResponse{Message: "Invalid or incomplete payment."})
	case errors.Is(err, issuance.ErrPoolExhausted):
		return c.JSON(http.StatusInternalServerError, couponResponse{
			Message: "Failed to assign coupon. Please try again later.",
			Code:    "pool_exhausted",
		})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusServiceUnavailable, couponResponse{
			Message: "Coupon service is temporarily unavailable. Please try again.",
			Code:    "store_unavailable",
		})
	}
}
