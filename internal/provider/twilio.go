package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/transact-messaging/internal/domain"
)

// HTTPDoer is the subset of *http.Client TwilioClient depends on, so tests
// can substitute a double without a live server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TwilioClient sends SMS through the Twilio Messages API, grounded on the
// teacher's esp_sparkpost.go HTTP-POST/parse-response shape. It makes
// exactly one bounded HTTP attempt per Send: internal/orchestrator already
// owns the spec's single retry layer (3 transient retries with exponential
// backoff), so a second retry loop in this client would let one Send
// perform multiple real provider attempts before the orchestrator ever
// classifies an error, corrupting the retry-count and audit trail.
type TwilioClient struct {
	accountSid string
	authToken  string
	fromNumber string
	baseURL    string
	http       HTTPDoer
}

// NewTwilioClient creates a TwilioClient targeting the Twilio 2010-04-01 API. The
// http.Client carries no Timeout of its own; the deadline on each Send's
// ctx (set by internal/orchestrator) bounds the request instead.
func NewTwilioClient(accountSid, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		accountSid: accountSid,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    "https://api.twilio.com/2010-04-01",
		http:       &http.Client{},
	}
}

// Send posts one message to Twilio and classifies any failure per
// spec.md §4.7: 4xx (other than 429) is permanent, 429/5xx/network errors
// and a ctx deadline expiry are transient.
func (c *TwilioClient) Send(ctx context.Context, to, body string) (domain.SendResult, error) {
	if c.accountSid == "" || c.authToken == "" {
		return domain.SendResult{}, &domain.ProviderError{Kind: domain.ProviderPermanent, Code: 0}
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.SendResult{}, &domain.ProviderError{Kind: domain.ProviderTransient, Code: 0}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSid, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		// Covers a network failure and a ctx deadline expiry alike: both are
		// transient per spec.md §5 ("deadline expiry is a transient failure").
		return domain.SendResult{}, &domain.ProviderError{Kind: domain.ProviderTransient, Code: 0}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		kind := domain.ProviderPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = domain.ProviderTransient
		}
		return domain.SendResult{}, &domain.ProviderError{Kind: kind, Code: resp.StatusCode}
	}

	var parsed struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.SendResult{}, &domain.ProviderError{Kind: domain.ProviderTransient, Code: resp.StatusCode}
	}

	return domain.SendResult{ProviderSid: parsed.Sid}, nil
}
