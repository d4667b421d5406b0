package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/courselyhq/coursely/internal/pkg/env"
)

// PurchaseEvent is the conversion payload forwarded to the downstream
// analytics collaborator after a completed checkout.
type PurchaseEvent struct {
	EventID     string            `json:"event_id"`
	Value       int64             `json:"value"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email,omitempty"`
	UserID      uint              `json:"user_id,omitempty"`
	Attribution map[string]string `json:"attribution,omitempty"`
}

// ConversionTracker forwards purchase conversions downstream. Implementations
// are best-effort: callers log failures and never fail the webhook over them.
type ConversionTracker interface {
	TrackPurchase(ctx context.Context, ev PurchaseEvent) error
}

// HTTPConversionTracker posts conversions to an analytics collector endpoint.
type HTTPConversionTracker struct {
	EndpointURL string
	AuthToken   string

	HTTPClient *http.Client
}

// NewConversionTrackerFromEnv returns the configured tracker, or a no-op when
// no analytics endpoint is set.
func NewConversionTrackerFromEnv() ConversionTracker {
	endpoint := strings.TrimSpace(env.GetEnv("ANALYTICS_TRACK_URL", ""))
	if endpoint == "" {
		return NoopTracker{}
	}
	return &HTTPConversionTracker{
		EndpointURL: endpoint,
		AuthToken:   strings.TrimSpace(env.GetEnv("ANALYTICS_TRACK_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *HTTPConversionTracker) TrackPurchase(ctx context.Context, ev PurchaseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.AuthToken)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("analytics track failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// NoopTracker drops conversions when analytics is not configured.
type NoopTracker struct{}

func (NoopTracker) TrackPurchase(context.Context, PurchaseEvent) error { return nil }
