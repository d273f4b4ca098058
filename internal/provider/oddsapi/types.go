package oddsapi

import (
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

// APISport is one entry of the /sports listing.
type APISport struct {
	Key          string `json:"key"`
	Group        string `json:"group"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	HasOutrights bool   `json:"has_outrights"`
}

// APIEvent is one event of the /sports/{sport}/odds response, carrying
// per-bookmaker price arrays.
type APIEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []APIBookmaker `json:"bookmakers"`
}

// APIBookmaker is one bookmaker's markets for an event.
type APIBookmaker struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate time.Time   `json:"last_update"`
	Markets    []APIMarket `json:"markets"`
}

// APIMarket is one market type quoted by a bookmaker.
type APIMarket struct {
	Key        string       `json:"key"`
	LastUpdate time.Time    `json:"last_update"`
	Outcomes   []APIOutcome `json:"outcomes"`
}

// APIOutcome is one priced outcome.
type APIOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"` // decimal odds
	Point float64 `json:"point,omitempty"`
}

// ToDomainEvent maps the API event header to a domain Event.
func (e APIEvent) ToDomainEvent() domain.Event {
	return domain.Event{
		ID:           e.ID,
		SportKey:     e.SportKey,
		SportTitle:   e.SportTitle,
		HomeTeam:     e.HomeTeam,
		AwayTeam:     e.AwayTeam,
		CommenceTime: e.CommenceTime,
	}
}

// ToQuotes flattens the event's nested bookmaker/market/outcome arrays into
// domain OddsQuotes. No validation happens here; the ingestor drops and
// counts malformed quotes.
func (e APIEvent) ToQuotes() []domain.OddsQuote {
	var quotes []domain.OddsQuote
	for _, bk := range e.Bookmakers {
		for _, mkt := range bk.Markets {
			for _, out := range mkt.Outcomes {
				quotes = append(quotes, domain.OddsQuote{
					Bookmaker:  bk.Key,
					EventID:    e.ID,
					MarketType: mkt.Key,
					Outcome:    out.Name,
					Odds:       out.Price,
					ObservedAt: mkt.LastUpdate,
				})
			}
		}
	}
	return quotes
}
