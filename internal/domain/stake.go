package domain

import "github.com/shopspring/decimal"

// Stake is the amount to place on one outcome at one bookmaker.
type Stake struct {
	Outcome   string
	Bookmaker string
	Odds      float64
	Amount    decimal.Decimal
}

// StakePlan converts an opportunity plus a recipient's unit size into
// concrete per-outcome stakes with equalized payout. Plans are derived values;
// they are not persisted beyond the notification they back, though they may be
// archived for audit.
type StakePlan struct {
	OpportunityID string
	Recipient     string
	Stakes        []Stake
	// Payout is the guaranteed return, equal across outcomes up to currency
	// rounding.
	Payout decimal.Decimal
	// Profit = Payout - total staked. Strictly positive for any opportunity
	// that passed the detector's margin test.
	Profit decimal.Decimal
}

// TotalStaked returns the sum of all stake amounts.
func (p StakePlan) TotalStaked() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.Stakes {
		total = total.Add(s.Amount)
	}
	return total
}
