package enum

import "strings"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusUnknown    PaymentStatus = "unknown"
)

// ParsePaymentStatus normalises a provider status. Unrecognised values map to PaymentStatusUnknown.
func ParsePaymentStatus(raw string) PaymentStatus {
	switch s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case PaymentStatusCreated, PaymentStatusPending, PaymentStatusAuthorized,
		PaymentStatusCaptured, PaymentStatusRefunded, PaymentStatusFailed:
		return s
	}
	return PaymentStatusUnknown
}
