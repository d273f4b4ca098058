package arb

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arbalert/arbalert/internal/domain"
)

var one = decimal.New(1, 0)

// Allocate splits a recipient's unit size across an opportunity's outcomes so
// every outcome pays out the same amount. Currency values round half-even to
// two decimals, and the total staked never exceeds the unit: when rounding
// pushes the sum over budget the residual comes off the largest stake.
func Allocate(opp domain.Opportunity, rcp domain.Recipient) (domain.StakePlan, error) {
	if !rcp.Unit.IsPositive() {
		return domain.StakePlan{}, fmt.Errorf("allocate for %s: unit size %s: %w",
			rcp.Name, rcp.Unit, domain.ErrInvalidAllocation)
	}
	if len(opp.BestPrices) < 2 {
		return domain.StakePlan{}, fmt.Errorf("allocate for %s: %d outcomes: %w",
			rcp.Name, len(opp.BestPrices), domain.ErrInvalidAllocation)
	}

	inverseSum := decimal.Zero
	for _, p := range opp.BestPrices {
		inverseSum = inverseSum.Add(one.Div(decimal.NewFromFloat(p.Odds)))
	}

	// P = U / S; stake_o = P / odds_o.
	payout := rcp.Unit.Div(inverseSum)

	stakes := make([]domain.Stake, 0, len(opp.BestPrices))
	largest := 0
	for i, p := range opp.BestPrices {
		odds := decimal.NewFromFloat(p.Odds)
		amount := payout.Div(odds).RoundBank(2)
		if !amount.IsPositive() {
			return domain.StakePlan{}, fmt.Errorf("allocate for %s: stake on %s rounds to zero: %w",
				rcp.Name, p.Outcome, domain.ErrInvalidAllocation)
		}
		stakes = append(stakes, domain.Stake{
			Outcome:   p.Outcome,
			Bookmaker: p.Bookmaker,
			Odds:      p.Odds,
			Amount:    amount,
		})
		if amount.GreaterThan(stakes[largest].Amount) {
			largest = i
		}
	}

	plan := domain.StakePlan{
		OpportunityID: opp.ID,
		Recipient:     rcp.Name,
		Stakes:        stakes,
		Payout:        payout.RoundBank(2),
	}

	if over := plan.TotalStaked().Sub(rcp.Unit); over.IsPositive() {
		stakes[largest].Amount = stakes[largest].Amount.Sub(over)
	}
	plan.Profit = plan.Payout.Sub(plan.TotalStaked())

	return plan, nil
}
