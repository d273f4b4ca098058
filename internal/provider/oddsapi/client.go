// Package oddsapi is the REST client for The Odds API v4, which provides
// upcoming events with per-bookmaker decimal prices and a finite monthly
// request quota reported via response headers.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

// QuotaUnknown is returned for the remaining budget when the provider did not
// include quota headers in the response.
const QuotaUnknown = -1

// Client calls The Odds API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	regions    string
	bookmakers []string
	httpClient *http.Client
}

// ClientConfig holds the provider connection parameters.
type ClientConfig struct {
	BaseURL    string
	ApiKey     string
	Regions    string
	Bookmakers []string
	Timeout    time.Duration
}

// NewClient creates a provider client. baseURL is the API root, e.g.
// "https://api.the-odds-api.com/v4".
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.ApiKey,
		regions:    cfg.Regions,
		bookmakers: cfg.Bookmakers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// OddsResponse bundles one sport's events with the quota headers that came
// back on the same response.
type OddsResponse struct {
	Events []APIEvent
	// Remaining is the request budget left on the provider account, or
	// QuotaUnknown when the header was absent.
	Remaining int
	Used      int
}

// GetOdds fetches upcoming events with odds for one sport. A sport with no
// upcoming events yields an empty Events slice, not an error.
func (c *Client) GetOdds(ctx context.Context, sportKey string, marketTypes []string) (OddsResponse, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", c.regions)
	params.Set("markets", strings.Join(marketTypes, ","))
	params.Set("oddsFormat", "decimal")
	if len(c.bookmakers) > 0 {
		params.Set("bookmakers", strings.Join(c.bookmakers, ","))
	}

	path := fmt.Sprintf("/sports/%s/odds?%s", url.PathEscape(sportKey), params.Encode())

	body, remaining, used, err := c.doGet(ctx, path)
	if err != nil {
		return OddsResponse{}, fmt.Errorf("oddsapi: get odds for %s: %w", sportKey, err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return OddsResponse{}, fmt.Errorf("oddsapi: decode odds for %s: %w", sportKey, err)
	}

	return OddsResponse{Events: events, Remaining: remaining, Used: used}, nil
}

// GetSports returns the provider's sport catalogue. Used at startup to
// validate configured sport keys.
func (c *Client) GetSports(ctx context.Context) ([]APISport, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)

	body, _, _, err := c.doGet(ctx, "/sports?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("oddsapi: get sports: %w", err)
	}

	var sports []APISport
	if err := json.Unmarshal(body, &sports); err != nil {
		return nil, fmt.Errorf("oddsapi: decode sports: %w", err)
	}
	return sports, nil
}

// doGet performs the request and classifies failures into the domain error
// taxonomy: 401/403 auth, 429 quota, 5xx and network faults transient. It
// also extracts the x-requests-remaining / x-requests-used quota headers.
func (c *Client) doGet(ctx context.Context, path string) (body []byte, remaining, used int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, QuotaUnknown, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, DNS failures, and connection resets all land here;
		// retry accounting treats them identically.
		return nil, QuotaUnknown, 0, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	remaining = headerInt(resp.Header, "x-requests-remaining")
	used = headerInt(resp.Header, "x-requests-used")
	if used == QuotaUnknown {
		used = 0
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, remaining, used, fmt.Errorf("%w: read body: %v", domain.ErrTransient, readErr)
		}
		return data, remaining, used, nil

	case resp.StatusCode == http.StatusNotFound:
		// Unknown sport key behaves like "no upcoming events".
		return []byte("[]"), remaining, used, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, remaining, used, fmt.Errorf("%w: status %d: %s",
			domain.ErrProviderAuth, resp.StatusCode, snippet(resp.Body))

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, remaining, used, fmt.Errorf("%w: status 429: %s",
			domain.ErrQuotaExhausted, snippet(resp.Body))

	case resp.StatusCode >= 500:
		return nil, remaining, used, fmt.Errorf("%w: status %d: %s",
			domain.ErrTransient, resp.StatusCode, snippet(resp.Body))

	default:
		return nil, remaining, used, fmt.Errorf("oddsapi: unexpected status %d: %s",
			resp.StatusCode, snippet(resp.Body))
	}
}

// headerInt parses an integer header, returning QuotaUnknown when absent or
// malformed.
func headerInt(h http.Header, key string) int {
	v := h.Get(key)
	if v == "" {
		return QuotaUnknown
	}
	// The provider reports fractional credit counts for some plans.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return QuotaUnknown
}

// snippet reads a short prefix of the body for error messages.
func snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 256))
	return string(data)
}
