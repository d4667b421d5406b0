package billing

import "encoding/json"

// Supported provider webhook event types. Anything else is acknowledged and
// ignored so the provider never retries it.
const (
	EventCheckoutCompleted    = "checkout.completed"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionDeleted  = "subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// WebhookEvent is the provider's event envelope. The payload is decoded into
// its concrete type at the dispatcher boundary, never passed around raw.
type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// CheckoutPayload is the payload of a checkout.completed event.
type CheckoutPayload struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	CustomerEmail     string            `json:"customer_email"`
	Subscription      string            `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

// SubscriptionItem is one line item of a provider subscription. Price fields
// on the local record are derived from the first item, never invented locally.
type SubscriptionItem struct {
	PriceID    string `json:"price_id"`
	UnitAmount *int64 `json:"unit_amount"`
	Currency   string `json:"currency"`
}

// CancellationDetails carries the structured cancellation info the provider
// attaches to terminated subscriptions.
type CancellationDetails struct {
	Reason   string `json:"reason"`
	Comment  string `json:"comment"`
	Feedback string `json:"feedback"`
}

// SubscriptionPayload is the payload of subscription.created/updated/deleted
// events and the shape returned by the provider's subscription-detail API.
// Timestamps are provider-native unix seconds; zero means absent.
type SubscriptionPayload struct {
	ID                  string               `json:"id"`
	Customer            string               `json:"customer"`
	Status              string               `json:"status"`
	Items               []SubscriptionItem   `json:"items"`
	CurrentPeriodStart  int64                `json:"current_period_start"`
	CurrentPeriodEnd    int64                `json:"current_period_end"`
	CancelAtPeriodEnd   bool                 `json:"cancel_at_period_end"`
	TrialStart          int64                `json:"trial_start"`
	TrialEnd            int64                `json:"trial_end"`
	CanceledAt          int64                `json:"canceled_at"`
	EndedAt             int64                `json:"ended_at"`
	CancelAt            int64                `json:"cancel_at"`
	CancellationDetails *CancellationDetails `json:"cancellation_details"`
	Metadata            map[string]string    `json:"metadata"`
}

// InvoicePayload is the payload of invoice.* events. Only the subscription
// reference matters for the payment-failure fast path.
type InvoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
}
