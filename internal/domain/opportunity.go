package domain

import "time"

// OpportunityStatus is the lifecycle state of a stored opportunity.
type OpportunityStatus string

const (
	// StatusNew marks an opportunity that has been registered but not yet
	// alerted on.
	StatusNew OpportunityStatus = "NEW"
	// StatusNotified marks an opportunity for which at least one delivery
	// succeeded.
	StatusNotified OpportunityStatus = "NOTIFIED"
	// StatusExpired marks an opportunity past the retention window. Expiry
	// is housekeeping only; it never re-enables alerting for the same
	// idempotency key within the cooldown window.
	StatusExpired OpportunityStatus = "EXPIRED"
)

// BestPrice is the winning (outcome, bookmaker, odds) assignment chosen by
// the detector for one outcome.
type BestPrice struct {
	Outcome   string
	Bookmaker string
	Odds      float64
}

// Opportunity is a detected arbitrage: a best-odds assignment across all
// outcomes of one market whose implied probabilities sum below 1. Created by
// the detector, owned by the opportunity store thereafter.
type Opportunity struct {
	ID             string
	IdempotencyKey string
	EventID        string
	SportKey       string
	MarketType     string
	HomeTeam       string
	AwayTeam       string
	CommenceTime   time.Time
	// BestPrices is sorted by outcome name so the assignment serialises
	// identically across runs.
	BestPrices    []BestPrice
	InverseSum    float64 // S = sum of 1/odds over BestPrices
	MarginPercent float64 // (1/S - 1) * 100
	DetectedAt    time.Time
	Status        OpportunityStatus
}

// RegisterResult is the outcome of an atomic check-then-insert against the
// opportunity store.
type RegisterResult struct {
	// IsNew is true when this call inserted the opportunity; false when a
	// record with the same idempotency key already existed within the
	// cooldown window.
	IsNew  bool
	Record Opportunity
}
