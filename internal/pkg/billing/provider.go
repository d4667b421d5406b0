package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/courselyhq/coursely/internal/pkg/env"
)

const defaultPaymentAPIBaseURL = "https://api.payments.example.com/v1"

// ProviderClient is the outbound surface of the payment provider consumed by
// the billing service: fetching full subscription detail after checkout and
// opening self-service portal sessions.
type ProviderClient interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionPayload, error)
	CreatePortalSession(ctx context.Context, externalCustomerID, returnURL string) (string, error)
}

// PaymentClient talks to the payment provider's REST API.
type PaymentClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewPaymentClientFromEnv builds a client from the environment. An empty API
// key means the billing subsystem is not configured; callers must check
// IsConfigured before serving webhook traffic.
func NewPaymentClientFromEnv() *PaymentClient {
	return &PaymentClient{
		APIKey:     strings.TrimSpace(env.GetEnv("PAYMENT_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYMENT_API_BASE_URL", defaultPaymentAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IsConfigured reports whether provider credentials are present.
func (c *PaymentClient) IsConfigured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// RetrieveSubscription fetches the authoritative subscription object from the
// provider.
func (c *PaymentClient) RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionPayload, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out SubscriptionPayload
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("provider subscription response missing id")
	}
	return &out, nil
}

// CreatePortalSession requests a single-use, time-bounded self-service
// management URL for the given billing customer.
func (c *PaymentClient) CreatePortalSession(ctx context.Context, externalCustomerID, returnURL string) (string, error) {
	customerID := strings.TrimSpace(externalCustomerID)
	if customerID == "" {
		return "", errors.New("customer id is required")
	}

	payload, err := json.Marshal(map[string]string{
		"customer":   customerID,
		"return_url": strings.TrimSpace(returnURL),
	})
	if err != nil {
		return "", err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/portal_sessions", payload)
	if err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", errors.New("provider portal response missing url")
	}
	return out.URL, nil
}

func (c *PaymentClient) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, errors.New("PAYMENT_API_KEY is not configured")
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payment provider request failed: %s %s status=%d body=%s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}
