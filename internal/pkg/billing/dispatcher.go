package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ErrInvalidPayload marks an event body that passed signature verification but
// cannot be decoded. Callers answer 400; retrying the same bytes cannot help.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Dispatcher routes a verified raw event body to the handler for its type.
type Dispatcher struct {
	svc *Service
}

// NewDispatcher creates a dispatcher over the given billing service.
func NewDispatcher(svc *Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Dispatch decodes the event envelope and its typed payload, then runs the
// matching reconciliation handler. Unknown event types are logged and
// acknowledged; a returned error means the provider should retry (HTTP 500),
// except ErrInvalidPayload which maps to 400.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrInvalidPayload, err)
	}

	eventAt := UnixToTimePtr(event.CreatedAt)

	switch event.Type {
	case EventCheckoutCompleted:
		var p CheckoutPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return fmt.Errorf("%w: decode checkout payload: %v", ErrInvalidPayload, err)
		}
		return d.svc.HandleCheckoutCompleted(ctx, &p, eventAt)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var p SubscriptionPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return fmt.Errorf("%w: decode subscription payload: %v", ErrInvalidPayload, err)
		}
		return d.svc.HandleSubscriptionEvent(ctx, &p, eventAt)

	case EventSubscriptionDeleted:
		var p SubscriptionPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return fmt.Errorf("%w: decode subscription payload: %v", ErrInvalidPayload, err)
		}
		return d.svc.HandleSubscriptionDeleted(ctx, &p, eventAt)

	case EventInvoicePaymentFailed:
		var p InvoicePayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return fmt.Errorf("%w: decode invoice payload: %v", ErrInvalidPayload, err)
		}
		return d.svc.HandleInvoicePaymentFailed(ctx, &p)

	default:
		log.Printf("billing: ignoring webhook event %s of unhandled type %q", event.ID, event.Type)
		return nil
	}
}
