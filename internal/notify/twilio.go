package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

// permanentTwilioCodes are Twilio error codes for which a retry can never
// succeed: 21211 invalid To number, 21408 no international permission,
// 21610 recipient unsubscribed, 21614 not a mobile number.
var permanentTwilioCodes = map[int]bool{
	21211: true,
	21408: true,
	21610: true,
	21614: true,
}

// TwilioSender delivers SMS alerts through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// TwilioConfig holds Twilio credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the API root, used in tests. Empty means the public
	// Twilio endpoint.
	BaseURL string
	Timeout time.Duration
}

// NewTwilioSender creates a TwilioSender.
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

var _ MessageSender = (*TwilioSender)(nil)

// twilioResponse is the subset of the Messages API response the sender reads.
type twilioResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts one SMS and returns the provider-assigned message SID. Failures
// are classified into the domain taxonomy: invalid-number class errors are
// permanent, rate limiting and server faults are transient.
func (t *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("twilio: %w: read body: %v", domain.ErrTransient, err)
	}

	var parsed twilioResponse
	// An unparsable body still carries the status code for classification.
	_ = json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parsed.SID, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("twilio: %w: rate limited: %s", domain.ErrTransient, parsed.Message)

	case resp.StatusCode >= 500:
		return "", fmt.Errorf("twilio: %w: status %d: %s", domain.ErrTransient, resp.StatusCode, parsed.Message)

	case permanentTwilioCodes[parsed.Code]:
		return "", fmt.Errorf("twilio: %w: code %d: %s", domain.ErrPermanentDelivery, parsed.Code, parsed.Message)

	default:
		// Remaining 4xx errors are misconfiguration; retrying with the same
		// request cannot help.
		return "", fmt.Errorf("twilio: %w: status %d code %d: %s",
			domain.ErrPermanentDelivery, resp.StatusCode, parsed.Code, parsed.Message)
	}
}
