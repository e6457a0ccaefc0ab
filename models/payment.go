package models

import "goflare.io/issuance/models/enum"

// Payment is the gateway's view of a payment, reduced to what verification needs.
type Payment struct {
	ID     string             `json:"id"`
	Status enum.PaymentStatus `json:"status"`
	Amount int64              `json:"amount,omitempty"`
	// RawStatus is the provider's own status string before normalisation.
	RawStatus string `json:"raw_status,omitempty"`
}
