// Package market groups raw provider quotes into canonical Markets keyed by
// (event, market type). Providers label the same outcome inconsistently, so
// outcome names are canonicalized against the event's team names plus a small
// fixed synonym table before grouping.
package market

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/arbalert/arbalert/internal/domain"
)

// outcomeSynonyms canonicalizes non-team outcome labels. "Tie" and "Draw"
// are the same outcome; both fold to Draw.
var outcomeSynonyms = map[string]string{
	"draw":  "Draw",
	"tie":   "Draw",
	"x":     "Draw",
	"over":  "Over",
	"o":     "Over",
	"under": "Under",
	"u":     "Under",
}

// Stats counts the normalizer's work for the cycle summary.
type Stats struct {
	MarketsBuilt   int
	MarketsDropped int
	// QuotesOrphaned counts quotes referencing an event that was not part
	// of this cycle's ingestion result.
	QuotesOrphaned int
}

// Normalizer builds Markets from a cycle's quotes.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With(slog.String("component", "normalizer"))}
}

type marketKey struct {
	eventID    string
	marketType string
}

// Normalize groups quotes into Markets. A market with fewer than two distinct
// outcomes is dropped: it cannot host an arbitrage. The returned slice is
// sorted by (event id, market type) so downstream processing is
// deterministic.
func (n *Normalizer) Normalize(events map[string]domain.Event, quotes []domain.OddsQuote) ([]domain.Market, Stats) {
	var stats Stats

	grouped := make(map[marketKey]map[string]map[string]float64) // key -> outcome -> bookmaker -> odds
	for _, q := range quotes {
		ev, ok := events[q.EventID]
		if !ok {
			stats.QuotesOrphaned++
			continue
		}

		outcome := CanonicalOutcome(q.Outcome, ev)
		key := marketKey{eventID: q.EventID, marketType: q.MarketType}

		outcomes := grouped[key]
		if outcomes == nil {
			outcomes = make(map[string]map[string]float64)
			grouped[key] = outcomes
		}
		books := outcomes[outcome]
		if books == nil {
			books = make(map[string]float64)
			outcomes[outcome] = books
		}
		// A bookmaker can appear twice for one outcome when canonicalization
		// merges labels; keep its best price.
		if q.Odds > books[q.Bookmaker] {
			books[q.Bookmaker] = q.Odds
		}
	}

	markets := make([]domain.Market, 0, len(grouped))
	for key, outcomes := range grouped {
		if len(outcomes) < 2 {
			stats.MarketsDropped++
			n.logger.Debug("dropping market with too few outcomes",
				slog.String("event_id", key.eventID),
				slog.String("market_type", key.marketType),
				slog.Int("outcomes", len(outcomes)),
			)
			continue
		}

		m := domain.Market{
			Event:      events[key.eventID],
			MarketType: key.marketType,
			Outcomes:   make(map[string][]domain.BookQuote, len(outcomes)),
		}
		for outcome, books := range outcomes {
			bqs := make([]domain.BookQuote, 0, len(books))
			for bookmaker, odds := range books {
				bqs = append(bqs, domain.BookQuote{Bookmaker: bookmaker, Odds: odds})
			}
			sort.Slice(bqs, func(i, j int) bool { return bqs[i].Bookmaker < bqs[j].Bookmaker })
			m.Outcomes[outcome] = bqs
		}
		markets = append(markets, m)
		stats.MarketsBuilt++
	}

	sort.Slice(markets, func(i, j int) bool {
		if markets[i].Event.ID != markets[j].Event.ID {
			return markets[i].Event.ID < markets[j].Event.ID
		}
		return markets[i].MarketType < markets[j].MarketType
	})

	n.logger.Info("normalization complete",
		slog.Int("markets", stats.MarketsBuilt),
		slog.Int("dropped", stats.MarketsDropped),
		slog.Int("orphaned_quotes", stats.QuotesOrphaned),
	)
	return markets, stats
}

// CanonicalOutcome maps a provider outcome label onto the event's team names
// or a fixed synonym. Unrecognized labels pass through trimmed, so markets
// like totals with point lines still group correctly when providers agree on
// naming.
func CanonicalOutcome(name string, ev domain.Event) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)

	if strings.EqualFold(trimmed, ev.HomeTeam) {
		return ev.HomeTeam
	}
	if strings.EqualFold(trimmed, ev.AwayTeam) {
		return ev.AwayTeam
	}
	if canon, ok := outcomeSynonyms[lower]; ok {
		return canon
	}
	return trimmed
}
