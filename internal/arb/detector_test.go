package arb

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

var testTime = time.Date(2025, 11, 2, 11, 0, 0, 0, time.UTC)

func testMarket(outcomes map[string][]domain.BookQuote) domain.Market {
	return domain.Market{
		Event: domain.Event{
			ID:           "g1",
			SportKey:     "basketball_nba",
			HomeTeam:     "Boston Celtics",
			AwayTeam:     "Miami Heat",
			CommenceTime: testTime.Add(12 * time.Hour),
		},
		MarketType: "h2h",
		Outcomes:   outcomes,
	}
}

func newTestDetector(epsilon float64) *Detector {
	return NewDetector(epsilon, time.UTC, slog.Default())
}

func TestDetect_FlagsArbitrage(t *testing.T) {
	// Best odds 2.00 and 2.50 give S = 0.50 + 0.40 = 0.90.
	m := testMarket(map[string][]domain.BookQuote{
		"Boston Celtics": {{Bookmaker: "book1", Odds: 2.00}, {Bookmaker: "book2", Odds: 1.90}},
		"Miami Heat":     {{Bookmaker: "book1", Odds: 2.20}, {Bookmaker: "book2", Odds: 2.50}},
	})

	opp, ok := newTestDetector(0.005).Detect(m, testTime)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if math.Abs(opp.InverseSum-0.90) > 1e-9 {
		t.Errorf("expected inverse sum 0.90, got %v", opp.InverseSum)
	}
	if math.Abs(opp.MarginPercent-100.0/9.0) > 1e-9 {
		t.Errorf("expected margin %%%.4f, got %v", 100.0/9.0, opp.MarginPercent)
	}
	if opp.Status != domain.StatusNew {
		t.Errorf("expected status NEW, got %s", opp.Status)
	}

	// Assignment sorted by outcome, each carrying the best bookmaker.
	want := []domain.BestPrice{
		{Outcome: "Boston Celtics", Bookmaker: "book1", Odds: 2.00},
		{Outcome: "Miami Heat", Bookmaker: "book2", Odds: 2.50},
	}
	if len(opp.BestPrices) != len(want) {
		t.Fatalf("expected %d best prices, got %d", len(want), len(opp.BestPrices))
	}
	for i, w := range want {
		if opp.BestPrices[i] != w {
			t.Errorf("best price %d: got %+v, want %+v", i, opp.BestPrices[i], w)
		}
	}
}

func TestDetect_NoOpportunityAtOrAboveThreshold(t *testing.T) {
	tests := []struct {
		name    string
		epsilon float64
		odds    [2]float64
	}{
		// S = 0.5 + 0.525 = 1.025: plainly no arbitrage.
		{"sum above one", 0.005, [2]float64{2.00, 1.905}},
		// S = 0.998 with epsilon 0.005: inside the safety margin.
		{"inside epsilon band", 0.005, [2]float64{2.00, 2.008}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := testMarket(map[string][]domain.BookQuote{
				"Boston Celtics": {{Bookmaker: "book1", Odds: tc.odds[0]}},
				"Miami Heat":     {{Bookmaker: "book1", Odds: tc.odds[1]}},
			})
			if _, ok := newTestDetector(tc.epsilon).Detect(m, testTime); ok {
				t.Error("expected no opportunity")
			}
		})
	}
}

func TestDetect_TieBreaksToLowestBookmaker(t *testing.T) {
	m := testMarket(map[string][]domain.BookQuote{
		// Quotes arrive bookmaker-sorted from the normalizer.
		"Boston Celtics": {
			{Bookmaker: "betmgm", Odds: 2.10},
			{Bookmaker: "draftkings", Odds: 2.10},
			{Bookmaker: "fanduel", Odds: 2.10},
		},
		"Miami Heat": {{Bookmaker: "caesars", Odds: 2.50}},
	})

	for run := 0; run < 10; run++ {
		opp, ok := newTestDetector(0.005).Detect(m, testTime)
		if !ok {
			t.Fatal("expected an opportunity")
		}
		if got := opp.BestPrices[0].Bookmaker; got != "betmgm" {
			t.Fatalf("run %d: tie must resolve to lowest bookmaker, got %s", run, got)
		}
	}
}

func TestDetect_ThreeWayMarket(t *testing.T) {
	// 1/3.1 + 1/3.4 + 1/3.9 = 0.8732...
	m := domain.Market{
		Event:      domain.Event{ID: "g2", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
		MarketType: "h2h",
		Outcomes: map[string][]domain.BookQuote{
			"Arsenal": {{Bookmaker: "book1", Odds: 3.1}},
			"Draw":    {{Bookmaker: "book2", Odds: 3.4}},
			"Chelsea": {{Bookmaker: "book3", Odds: 3.9}},
		},
	}

	opp, ok := newTestDetector(0.005).Detect(m, testTime)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if len(opp.BestPrices) != 3 {
		t.Fatalf("expected 3 best prices, got %d", len(opp.BestPrices))
	}
	if opp.InverseSum >= 1 {
		t.Errorf("expected inverse sum below 1, got %v", opp.InverseSum)
	}
}

func TestDetect_InverseSumReproducible(t *testing.T) {
	// Map iteration order varies between runs; the sum must not.
	m := domain.Market{
		Event:      domain.Event{ID: "g3", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
		MarketType: "h2h",
		Outcomes: map[string][]domain.BookQuote{
			"Arsenal": {{Bookmaker: "book1", Odds: 3.17}},
			"Draw":    {{Bookmaker: "book2", Odds: 3.55}},
			"Chelsea": {{Bookmaker: "book3", Odds: 3.92}},
		},
	}

	d := newTestDetector(0.005)
	first, ok := d.Detect(m, testTime)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	for run := 0; run < 50; run++ {
		opp, ok := d.Detect(m, testTime)
		if !ok {
			t.Fatalf("run %d: expected an opportunity", run)
		}
		if math.Float64bits(opp.InverseSum) != math.Float64bits(first.InverseSum) {
			t.Fatalf("run %d: inverse sum drifted: %v vs %v", run, opp.InverseSum, first.InverseSum)
		}
	}
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	prices := []domain.BestPrice{
		{Outcome: "Boston Celtics", Bookmaker: "book1", Odds: 2.0},
		{Outcome: "Miami Heat", Bookmaker: "book2", Odds: 2.5},
	}
	reversed := []domain.BestPrice{prices[1], prices[0]}
	day := time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC)

	k1 := IdempotencyKey("g1", "h2h", prices, day)
	k2 := IdempotencyKey("g1", "h2h", reversed, day.Add(3*time.Hour))
	if k1 != k2 {
		t.Error("same assignment on the same day must produce the same key regardless of order")
	}

	if k1 == IdempotencyKey("g1", "h2h", prices, day.AddDate(0, 0, 1)) {
		t.Error("next calendar day must produce a different key")
	}
	if k1 == IdempotencyKey("g2", "h2h", prices, day) {
		t.Error("different event must produce a different key")
	}

	other := []domain.BestPrice{
		{Outcome: "Boston Celtics", Bookmaker: "book3", Odds: 2.0},
		{Outcome: "Miami Heat", Bookmaker: "book2", Odds: 2.5},
	}
	if k1 == IdempotencyKey("g1", "h2h", other, day) {
		t.Error("different bookmaker assignment must produce a different key")
	}
}

func TestIdempotencyKey_UsesReferenceTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	d := NewDetector(0.005, ny, slog.Default())

	m := testMarket(map[string][]domain.BookQuote{
		"Boston Celtics": {{Bookmaker: "book1", Odds: 2.00}},
		"Miami Heat":     {{Bookmaker: "book2", Odds: 2.50}},
	})

	// 2025-11-03 02:00 UTC is still 2025-11-02 in New York.
	late := time.Date(2025, 11, 3, 2, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 11, 2, 15, 0, 0, 0, time.UTC)

	a, _ := d.Detect(m, late)
	b, _ := d.Detect(m, earlier)
	if a.IdempotencyKey != b.IdempotencyKey {
		t.Error("both instants fall on the same reference-timezone date and must share a key")
	}
}
