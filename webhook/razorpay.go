package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

const (
	RazorpaySignatureHeader = "X-Razorpay-Signature"
	RazorpayEventIDHeader   = "X-Razorpay-Event-Id"

	razorpaySignatureLength = sha256.Size * 2
)

type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity struct {
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type Razorpay struct {
	secret []byte
}

func NewRazorpay(secret string) *Razorpay {
	return &Razorpay{secret: []byte(secret)}
}

// SignRazorpay returns the hex HMAC-SHA256 of payload under secret.
func SignRazorpay(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) Name() string { return ProviderRazorpay }

func (r *Razorpay) SignatureHeader() string { return RazorpaySignatureHeader }

func (r *Razorpay) Verify(payload []byte, signature string) error {
	// 長度不符直接拒絕，長度相同時才做常數時間比較
	if len(signature) != razorpaySignatureLength {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(payload)
	expected := []byte(hex.EncodeToString(mac.Sum(nil)))
	if !hmac.Equal(expected, []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

func (r *Razorpay) Parse(payload []byte, header map[string]string) (*models.PaymentEvent, error) {
	var env razorpayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	event := &models.PaymentEvent{
		ID:       headerValue(header, RazorpayEventIDHeader),
		Type:     env.Event,
		Provider: ProviderRazorpay,
		Status:   enum.PaymentStatusUnknown,
	}
	switch {
	case env.Payload.Payment != nil:
		event.PaymentID = env.Payload.Payment.Entity.ID
		event.Status = enum.ParsePaymentStatus(env.Payload.Payment.Entity.Status)
	case env.Payload.Refund != nil:
		event.PaymentID = env.Payload.Refund.Entity.PaymentID
		event.Status = enum.PaymentStatusRefunded
	}
	return event, nil
}

func (r *Razorpay) AllocationEvents() []string {
	return []string{"payment.authorized"}
}

func (r *Razorpay) InformationalEvents() []string {
	return []string{"payment.captured", "payment.failed", "refund.created"}
}
