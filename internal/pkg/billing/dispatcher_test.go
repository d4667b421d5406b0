package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/courselyhq/coursely/app/models"
)

func TestDispatch_InvalidEnvelope(t *testing.T) {
	d := NewDispatcher(newTestService(newFakeRepository(), nil, nil, nil))

	err := d.Dispatch(context.Background(), []byte(`{"broken`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDispatch_InvalidTypedPayload(t *testing.T) {
	d := NewDispatcher(newTestService(newFakeRepository(), nil, nil, nil))

	raw := []byte(`{"id":"evt_1","type":"subscription.updated","created_at":1700000000,"data":"not-an-object"}`)
	err := d.Dispatch(context.Background(), raw)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for malformed data, got %v", err)
	}
}

func TestDispatch_UnknownTypeIsAcknowledged(t *testing.T) {
	repo := newFakeRepository()
	d := NewDispatcher(newTestService(repo, nil, nil, nil))

	raw := []byte(`{"id":"evt_2","type":"charge.refunded","created_at":1700000000,"data":{"id":"ch_1"}}`)
	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("expected unknown event type to be acknowledged, got %v", err)
	}
	if len(repo.subscriptions) != 0 || len(repo.customers) != 0 {
		t.Fatalf("expected no writes for unknown event type")
	}
}

func TestDispatch_RoutesSubscriptionUpdated(t *testing.T) {
	repo := newFakeRepository()
	repo.customers[1] = &models.BillingCustomer{ID: 1, UserID: 1, ExternalCustomerID: "cus_1"}
	d := NewDispatcher(newTestService(repo, nil, nil, nil))

	raw := []byte(`{
		"id": "evt_3",
		"type": "subscription.updated",
		"created_at": 1700000000,
		"data": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"items": [{"price_id": "price_pro", "unit_amount": 2900, "currency": "eur"}]
		}
	}`)
	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	sub, err := repo.GetSubscription("sub_1")
	if err != nil {
		t.Fatalf("expected subscription to be mirrored: %v", err)
	}
	if sub.Status != models.SubStatusActive || sub.PriceID != "price_pro" {
		t.Fatalf("unexpected record: %+v", sub)
	}
	if sub.ProviderEventAt == nil || sub.ProviderEventAt.Unix() != 1700000000 {
		t.Fatalf("expected envelope created_at to become provider event time, got %v", sub.ProviderEventAt)
	}
}

func TestDispatch_RoutesInvoicePaymentFailed(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_1"] = &models.BillingSubscription{ID: "sub_1", UserID: 1, Status: models.SubStatusActive}
	d := NewDispatcher(newTestService(repo, nil, nil, nil))

	raw := []byte(`{
		"id": "evt_4",
		"type": "invoice.payment_failed",
		"created_at": 1700000000,
		"data": {"id": "in_1", "customer": "cus_1", "subscription": "sub_1"}
	}`)
	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusPastDue {
		t.Fatalf("expected fast path to mark past_due, got %q", sub.Status)
	}
}
