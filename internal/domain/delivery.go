package domain

import "time"

// DeliveryStatus is the terminal state of one recipient's alert delivery.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliverySkipped DeliveryStatus = "SKIPPED" // malformed recipient, never attempted
)

// DeliveryResult records the outcome of sending one alert to one recipient.
// A failed delivery is isolated to its recipient and never prevents delivery
// to others.
type DeliveryResult struct {
	ID            string
	OpportunityID string
	Recipient     string
	Phone         string
	Status        DeliveryStatus
	// MessageID is the provider-assigned delivery id, set on success.
	MessageID   string
	Error       string
	AttemptedAt time.Time
}
