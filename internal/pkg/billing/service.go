package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/courselyhq/coursely/app/models"
	"github.com/courselyhq/coursely/internal/pkg/entitlements"
	"github.com/courselyhq/coursely/internal/pkg/env"
	"gorm.io/gorm"
)

// ErrNoBillingCustomer means the user has no billing identity on file. This is
// an expected state (they never checked out), not a server failure.
var ErrNoBillingCustomer = errors.New("no billing customer on file for user")

// attributionMetadataKey is the checkout metadata key carrying the serialized
// marketing-attribution blob.
const attributionMetadataKey = "attribution"

// Service reconciles external subscription state into local tables. All
// collaborators are injected; handlers are safe against redelivery by
// construction (same event in, same final state out).
type Service struct {
	repo     Repository
	provider ProviderClient
	tracker  ConversionTracker
	notifier PastDueNotifier
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider ProviderClient, tracker ConversionTracker, notifier PastDueNotifier) *Service {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Service{repo: repo, provider: provider, tracker: tracker, notifier: notifier}
}

// NewServiceFromDB creates a billing service from a GORM handle with the
// provider client, tracker and notifier configured from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewPaymentClientFromEnv(), NewConversionTrackerFromEnv(), NewPastDueNotifierFromEnv())
}

// HandleCheckoutCompleted links the checkout's local user to the external
// customer, mirrors the new subscription if the checkout produced one, and
// fires a best-effort conversion-tracking call.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, p *CheckoutPayload, eventAt *time.Time) error {
	userID := parseUserRef(p.ClientReferenceID)
	if userID == 0 || strings.TrimSpace(p.Customer) == "" {
		log.Printf("billing: checkout %s has no usable local user reference, skipping", p.ID)
		return nil
	}

	customer := &models.BillingCustomer{
		UserID:             userID,
		OrganizationID:     parseOrgRef(p.Metadata),
		ExternalCustomerID: strings.TrimSpace(p.Customer),
	}
	if err := s.repo.UpsertCustomer(customer); err != nil {
		return fmt.Errorf("upsert customer for checkout %s: %w", p.ID, err)
	}

	attribution := ParseAttribution(p.Metadata[attributionMetadataKey])

	var trackValue int64 = p.AmountTotal
	trackCurrency := p.Currency

	if strings.TrimSpace(p.Subscription) != "" {
		detail, err := s.provider.RetrieveSubscription(ctx, p.Subscription)
		if err != nil {
			return fmt.Errorf("retrieve subscription %s: %w", p.Subscription, err)
		}

		record := s.buildRecord(customer, detail, eventAt, nil)
		record.AttributionData = attribution
		// Checkout-only fallback: no resolvable line item means the checkout
		// total is the best price signal we have.
		if record.PriceAmount == nil && p.AmountTotal > 0 {
			amount := p.AmountTotal
			currency := p.Currency
			if currency == "" {
				currency = defaultCurrency
			}
			record.PriceAmount = &amount
			record.PriceCurrency = &currency
		}
		if record.PriceAmount != nil {
			trackValue = *record.PriceAmount
		}
		if record.PriceCurrency != nil {
			trackCurrency = *record.PriceCurrency
		}

		if err := s.repo.UpsertSubscription(record); err != nil {
			return fmt.Errorf("upsert subscription %s: %w", record.ID, err)
		}
		if _, err := s.ReconcileUserPlan(ctx, userID); err != nil {
			return fmt.Errorf("reconcile plan for user %d: %w", userID, err)
		}
	}

	if trackCurrency == "" {
		trackCurrency = defaultCurrency
	}
	if err := s.tracker.TrackPurchase(ctx, PurchaseEvent{
		EventID:     p.ID,
		Value:       trackValue,
		Currency:    trackCurrency,
		Email:       p.CustomerEmail,
		UserID:      userID,
		Attribution: attribution,
	}); err != nil {
		log.Printf("billing: conversion tracking for checkout %s failed: %v", p.ID, err)
	}

	return nil
}

// HandleSubscriptionEvent mirrors a subscription.created/updated event. The
// external customer must already be known; a subscription event never
// fabricates a Customer row.
func (s *Service) HandleSubscriptionEvent(ctx context.Context, p *SubscriptionPayload, eventAt *time.Time) error {
	customer, err := s.repo.GetCustomerByExternalID(strings.TrimSpace(p.Customer))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: customer %s not found for subscription %s, skipping", p.Customer, p.ID)
			return nil
		}
		return fmt.Errorf("lookup customer %s: %w", p.Customer, err)
	}

	existing, err := s.getSubscriptionIfAny(p.ID)
	if err != nil {
		return err
	}
	if isStale(existing, eventAt) {
		log.Printf("billing: subscription %s event is older than stored state, skipping", p.ID)
		return nil
	}

	record := s.buildRecord(customer, p, eventAt, existing)
	if err := s.repo.UpsertSubscription(record); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", record.ID, err)
	}

	if _, err := s.ReconcileUserPlan(ctx, customer.UserID); err != nil {
		return fmt.Errorf("reconcile plan for user %d: %w", customer.UserID, err)
	}
	return nil
}

// HandleSubscriptionDeleted forces the local record into canceled state. When
// the customer is unknown the status-only fallback still runs, so a canceled
// subscription is never left looking active.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, p *SubscriptionPayload, eventAt *time.Time) error {
	customer, err := s.repo.GetCustomerByExternalID(strings.TrimSpace(p.Customer))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: customer %s not found for deleted subscription %s, falling back to status-only update", p.Customer, p.ID)
			if uerr := s.repo.UpdateSubscriptionStatus(p.ID, models.SubStatusCanceled); uerr != nil {
				return fmt.Errorf("status-only cancel of subscription %s: %w", p.ID, uerr)
			}
			return nil
		}
		return fmt.Errorf("lookup customer %s: %w", p.Customer, err)
	}

	existing, err := s.getSubscriptionIfAny(p.ID)
	if err != nil {
		return err
	}

	record := s.buildRecord(customer, p, eventAt, existing)
	record.Status = models.SubStatusCanceled
	record.CanceledAt = TimeOrNow(record.CanceledAt)
	record.EndedAt = TimeOrNow(record.EndedAt)

	if err := s.repo.UpsertSubscription(record); err != nil {
		return fmt.Errorf("upsert canceled subscription %s: %w", record.ID, err)
	}

	if _, err := s.ReconcileUserPlan(ctx, customer.UserID); err != nil {
		return fmt.Errorf("reconcile plan for user %d: %w", customer.UserID, err)
	}
	return nil
}

// HandleInvoicePaymentFailed is the status-only fast path: the invoice only
// carries a subscription reference and the fact that payment failed.
func (s *Service) HandleInvoicePaymentFailed(ctx context.Context, p *InvoicePayload) error {
	_ = ctx
	subID := strings.TrimSpace(p.Subscription)
	if subID == "" {
		log.Printf("billing: invoice %s has no subscription reference, nothing to do", p.ID)
		return nil
	}

	existing, err := s.getSubscriptionIfAny(subID)
	if err != nil {
		return err
	}
	// A terminated subscription stays terminated; a trailing failed invoice
	// must not flip canceled back to past_due.
	if existing != nil && existing.IsEnded() {
		log.Printf("billing: subscription %s already ended, ignoring failed invoice %s", subID, p.ID)
		return nil
	}

	if err := s.repo.UpdateSubscriptionStatus(subID, models.SubStatusPastDue); err != nil {
		return fmt.Errorf("mark subscription %s past_due: %w", subID, err)
	}
	if existing != nil {
		s.notifyPastDue(existing)
	}
	return nil
}

// notifyPastDue emails the affected user if they opted in. Lookup or delivery
// failures are logged and dropped: the status column is already written and a
// provider retry would only duplicate the email.
func (s *Service) notifyPastDue(sub *models.BillingSubscription) {
	us, err := s.repo.GetOrCreateUserSettings(sub.UserID)
	if err != nil || !us.EmailOnPastDue {
		return
	}
	email, err := s.repo.GetUserEmail(sub.UserID)
	if err != nil || email == "" {
		return
	}
	if err := s.notifier.NotifyPaymentFailed(email, sub.ID); err != nil {
		log.Printf("billing: past-due notification for subscription %s failed: %v", sub.ID, err)
	}
}

// CreatePortalSession resolves the user's billing customer and requests a
// provider-hosted self-service management URL. No local state is mutated.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint, returnURL string) (string, error) {
	customer, err := s.repo.GetCustomerByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoBillingCustomer
		}
		return "", fmt.Errorf("lookup customer for user %d: %w", userID, err)
	}

	if strings.TrimSpace(returnURL) == "" {
		base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
		returnURL = base + "/account/billing"
	}
	return s.provider.CreatePortalSession(ctx, customer.ExternalCustomerID, returnURL)
}

// ReconcileUserPlan computes and writes the best effective plan for a user
// from their entitling subscriptions and the price-to-plan mapping table.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", err
	}

	best := entitlements.PlanFree
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		mapping, err := s.repo.FindActivePlanMapping(sub.PriceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", err
		}
		candidate := entitlements.Normalize(mapping.InternalPlan)
		if entitlements.Rank(candidate) > entitlements.Rank(best) {
			best = candidate
		}
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if entitlements.Normalize(us.Plan) == best {
		return string(best), nil
	}
	us.Plan = string(best)
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return string(best), nil
}

// buildRecord maps a provider subscription payload onto the local record.
// Attribution is carried over from the existing row when present: it is set
// once at creation and never re-derived from later events.
func (s *Service) buildRecord(customer *models.BillingCustomer, p *SubscriptionPayload, eventAt *time.Time, existing *models.BillingSubscription) *models.BillingSubscription {
	amount, currency := DerivePrice(p.Items)
	priceID := ""
	if len(p.Items) > 0 {
		priceID = p.Items[0].PriceID
	}

	record := &models.BillingSubscription{
		ID:                 strings.TrimSpace(p.ID),
		UserID:             customer.UserID,
		OrganizationID:     customer.OrganizationID,
		ExternalCustomerID: customer.ExternalCustomerID,
		PriceID:            priceID,
		Status:             normalizeStatus(p.Status),
		CurrentPeriodStart: UnixToTimePtr(p.CurrentPeriodStart),
		CurrentPeriodEnd:   UnixToTimePtr(p.CurrentPeriodEnd),
		CancelAtPeriodEnd:  p.CancelAtPeriodEnd,
		TrialStartAt:       UnixToTimePtr(p.TrialStart),
		TrialEndAt:         UnixToTimePtr(p.TrialEnd),
		CanceledAt:         UnixToTimePtr(p.CanceledAt),
		EndedAt:            UnixToTimePtr(p.EndedAt),
		CancelAt:           UnixToTimePtr(p.CancelAt),
		Metadata:           toJSONMap(p.Metadata),
		AttributionData:    models.JSONMap{},
		PriceAmount:        amount,
		PriceCurrency:      currency,
		ProviderEventAt:    eventAt,
	}

	if p.CancellationDetails != nil {
		record.CancellationReason = strPtr(p.CancellationDetails.Reason)
		record.CancellationComment = strPtr(p.CancellationDetails.Comment)
		record.CancellationFeedback = strPtr(p.CancellationDetails.Feedback)
	}

	if existing != nil && len(existing.AttributionData) > 0 {
		record.AttributionData = existing.AttributionData
	}
	return record
}

func (s *Service) getSubscriptionIfAny(id string) (*models.BillingSubscription, error) {
	existing, err := s.repo.GetSubscription(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup subscription %s: %w", id, err)
	}
	return existing, nil
}

// isStale reports whether the stored record was produced by a strictly newer
// provider event. Equal timestamps still overwrite so redelivery of the same
// event stays idempotent.
func isStale(existing *models.BillingSubscription, eventAt *time.Time) bool {
	if existing == nil || existing.ProviderEventAt == nil || eventAt == nil {
		return false
	}
	return existing.ProviderEventAt.After(*eventAt)
}

func parseUserRef(ref string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(ref), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func parseOrgRef(metadata map[string]string) *uint {
	raw, ok := metadata["organization_id"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return nil
	}
	out := uint(id)
	return &out
}

func toJSONMap(m map[string]string) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
