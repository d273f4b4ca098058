package domain

// BookQuote is one bookmaker's price for an outcome within a Market.
type BookQuote struct {
	Bookmaker string
	Odds      float64
}

// Market groups all bookmaker quotes for one event and market type, keyed by
// canonical outcome name. Markets are built fresh each cycle and never
// mutated after construction, only replaced.
type Market struct {
	Event      Event
	MarketType string
	// Outcomes maps canonical outcome name to quotes sorted by bookmaker
	// identifier ascending. The ordering makes best-price selection
	// deterministic when two books quote identical odds.
	Outcomes map[string][]BookQuote
}

// OutcomeCount returns the number of distinct outcomes in the market.
func (m Market) OutcomeCount() int {
	return len(m.Outcomes)
}
