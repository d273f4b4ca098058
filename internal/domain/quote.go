package domain

import "time"

// MinOdds is the lowest decimal odds a quote may carry. Anything at or below
// 1.0 pays out less than the stake and is treated as malformed provider data.
const MinOdds = 1.01

// OddsQuote is a single bookmaker price for one outcome of one event market.
// Quotes are immutable once fetched.
type OddsQuote struct {
	Bookmaker  string
	EventID    string
	MarketType string // "h2h", "spreads", "totals"
	Outcome    string
	Odds       float64 // decimal odds, e.g. 2.10
	ObservedAt time.Time
}

// Valid reports whether the quote carries all required fields and playable
// odds. Invalid quotes are dropped and counted by the ingestor, never raised
// as errors.
func (q OddsQuote) Valid() bool {
	if q.Bookmaker == "" || q.EventID == "" || q.MarketType == "" || q.Outcome == "" {
		return false
	}
	return q.Odds >= MinOdds
}

// Event is a sporting event as reported by the odds provider. Read-only to
// the core.
type Event struct {
	ID           string
	SportKey     string
	SportTitle   string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
}
