package issuance

import (
	"errors"

	"goflare.io/issuance/webhook"
)

var (
	// ErrSignatureInvalid 簽名驗證失敗
	ErrSignatureInvalid = webhook.ErrSignatureInvalid
	// ErrUnrecognizedEvent 無對應處理器的事件類型
	ErrUnrecognizedEvent = errors.New("unrecognized event type")
	// ErrPaymentNotVerified 付款無法向閘道確認，或狀態不符
	ErrPaymentNotVerified = errors.New("payment not verified")
	// ErrPoolExhausted 券池已無可用優惠券
	ErrPoolExhausted = errors.New("coupon pool exhausted")
	// ErrStoreUnavailable 儲存層暫時性失敗，可重試
	ErrStoreUnavailable = errors.New("coupon store unavailable")
	// ErrCouponNotFound 此付款尚未發放優惠券
	ErrCouponNotFound = errors.New("coupon not found for payment")
	// ErrInvalidPaymentID 付款編號為空
	ErrInvalidPaymentID = errors.New("invalid payment id")
	// ErrQueueFull webhook 工作佇列已滿
	ErrQueueFull = errors.New("webhook queue is full")
)
