package models

import (
	"time"

	"goflare.io/issuance/models/enum"
)

// PaymentEvent is a gateway confirmation after signature verification and parsing.
// It is never persisted.
type PaymentEvent struct {
	ID         string             `json:"id,omitempty"`
	Type       string             `json:"type"`
	PaymentID  string             `json:"payment_id"`
	Status     enum.PaymentStatus `json:"status"`
	Provider   string             `json:"provider"`
	ReceivedAt time.Time          `json:"received_at"`
}

// Delivery is one raw webhook request as it travels from the HTTP handler to the workers.
// The payload is kept verbatim so parsing happens after the acknowledgment.
type Delivery struct {
	Provider   string            `json:"provider"`
	Payload    []byte            `json:"payload"`
	Header     map[string]string `json:"header,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}
