// Package arb detects cross-bookmaker arbitrage in normalized markets and
// splits a recipient's unit size into equal-payout stakes.
package arb

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arbalert/arbalert/internal/domain"
)

// Detector scans markets for best-odds assignments whose implied
// probabilities sum below 1.
type Detector struct {
	// epsilon is the safety margin absorbing quote staleness and rounding
	// drift. S must fall below 1-epsilon to count.
	epsilon float64
	// loc is the reference timezone for the calendar-date component of the
	// idempotency key.
	loc    *time.Location
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(epsilon float64, loc *time.Location, logger *slog.Logger) *Detector {
	return &Detector{
		epsilon: epsilon,
		loc:     loc,
		logger:  logger.With(slog.String("component", "detector")),
	}
}

// Detect evaluates one market. It returns at most one opportunity: the
// globally best per-outcome assignment. S at or above 1-epsilon means no
// opportunity, which is the normal case, not an error.
func (d *Detector) Detect(m domain.Market, now time.Time) (domain.Opportunity, bool) {
	if m.OutcomeCount() < 2 {
		return domain.Opportunity{}, false
	}

	// Float addition is not associative; summing in sorted outcome order keeps
	// S identical across runs on identical input.
	outcomes := make([]string, 0, m.OutcomeCount())
	for outcome := range m.Outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	best := make([]domain.BestPrice, 0, len(outcomes))
	inverseSum := 0.0
	for _, outcome := range outcomes {
		quotes := m.Outcomes[outcome]
		if len(quotes) == 0 {
			return domain.Opportunity{}, false
		}
		bp := bestQuote(outcome, quotes)
		best = append(best, bp)
		inverseSum += 1.0 / bp.Odds
	}

	if inverseSum >= 1.0-d.epsilon {
		return domain.Opportunity{}, false
	}

	margin := (1.0/inverseSum - 1.0) * 100.0
	opp := domain.Opportunity{
		ID:             uuid.New().String(),
		IdempotencyKey: IdempotencyKey(m.Event.ID, m.MarketType, best, now.In(d.loc)),
		EventID:        m.Event.ID,
		SportKey:       m.Event.SportKey,
		MarketType:     m.MarketType,
		HomeTeam:       m.Event.HomeTeam,
		AwayTeam:       m.Event.AwayTeam,
		CommenceTime:   m.Event.CommenceTime,
		BestPrices:     best,
		InverseSum:     inverseSum,
		MarginPercent:  margin,
		DetectedAt:     now,
		Status:         domain.StatusNew,
	}

	d.logger.Info("arbitrage detected",
		slog.String("event_id", opp.EventID),
		slog.String("market_type", opp.MarketType),
		slog.Float64("inverse_sum", inverseSum),
		slog.Float64("margin_percent", margin),
	)
	return opp, true
}

// bestQuote picks the highest odds for an outcome. Quotes arrive sorted by
// bookmaker ascending, and only a strictly greater price displaces the
// incumbent, so ties resolve to the lexicographically lowest bookmaker on
// every run.
func bestQuote(outcome string, quotes []domain.BookQuote) domain.BestPrice {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Odds > best.Odds {
			best = q
		}
	}
	return domain.BestPrice{Outcome: outcome, Bookmaker: best.Bookmaker, Odds: best.Odds}
}
