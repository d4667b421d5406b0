package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/courselyhq/coursely/app/models"
)

// fakeRepository is an in-memory Repository for service tests.
type fakeRepository struct {
	customers     map[uint]*models.BillingCustomer
	subscriptions map[string]*models.BillingSubscription
	mappings      map[string]*models.BillingPlanMapping
	settings      map[uint]*models.UserSettings
	emails        map[uint]string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		customers:     map[uint]*models.BillingCustomer{},
		subscriptions: map[string]*models.BillingSubscription{},
		mappings:      map[string]*models.BillingPlanMapping{},
		settings:      map[uint]*models.UserSettings{},
		emails:        map[uint]string{},
	}
}

func (r *fakeRepository) UpsertCustomer(c *models.BillingCustomer) error {
	if existing, ok := r.customers[c.UserID]; ok {
		existing.ExternalCustomerID = c.ExternalCustomerID
		existing.OrganizationID = c.OrganizationID
		*c = *existing
		return nil
	}
	c.ID = uint(len(r.customers) + 1)
	stored := *c
	r.customers[c.UserID] = &stored
	return nil
}

func (r *fakeRepository) GetCustomerByExternalID(externalID string) (*models.BillingCustomer, error) {
	for _, c := range r.customers {
		if c.ExternalCustomerID == externalID {
			out := *c
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetCustomerByUserID(userID uint) (*models.BillingCustomer, error) {
	c, ok := r.customers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *c
	return &out, nil
}

func (r *fakeRepository) GetSubscription(id string) (*models.BillingSubscription, error) {
	s, ok := r.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *s
	return &out, nil
}

func (r *fakeRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	stored := *sub
	r.subscriptions[sub.ID] = &stored
	return nil
}

func (r *fakeRepository) UpdateSubscriptionStatus(id, status string) error {
	if s, ok := r.subscriptions[id]; ok {
		s.Status = status
	}
	return nil
}

func (r *fakeRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var out []models.BillingSubscription
	for _, s := range r.subscriptions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepository) FindActivePlanMapping(priceID string) (*models.BillingPlanMapping, error) {
	m, ok := r.mappings[priceID]
	if !ok || !m.IsActive {
		return nil, gorm.ErrRecordNotFound
	}
	out := *m
	return &out, nil
}

func (r *fakeRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.settings[userID]; ok {
		out := *us
		return &out, nil
	}
	us := &models.UserSettings{UserID: userID, Plan: "free", EmailOnPastDue: true}
	r.settings[userID] = us
	out := *us
	return &out, nil
}

func (r *fakeRepository) SaveUserSettings(us *models.UserSettings) error {
	stored := *us
	r.settings[us.UserID] = &stored
	return nil
}

func (r *fakeRepository) GetUserEmail(userID uint) (string, error) {
	email, ok := r.emails[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return email, nil
}

// fakeProvider serves canned subscription detail and records portal requests.
type fakeProvider struct {
	subscriptions map[string]*SubscriptionPayload
	portalURL     string

	portalCustomer  string
	portalReturnURL string
}

func (p *fakeProvider) RetrieveSubscription(_ context.Context, id string) (*SubscriptionPayload, error) {
	sub, ok := p.subscriptions[id]
	if !ok {
		return nil, errors.New("subscription not found")
	}
	return sub, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, externalCustomerID, returnURL string) (string, error) {
	p.portalCustomer = externalCustomerID
	p.portalReturnURL = returnURL
	return p.portalURL, nil
}

type recordingTracker struct {
	events []PurchaseEvent
}

func (t *recordingTracker) TrackPurchase(_ context.Context, ev PurchaseEvent) error {
	t.events = append(t.events, ev)
	return nil
}

type recordingNotifier struct {
	emails []string
	subIDs []string
}

func (n *recordingNotifier) NotifyPaymentFailed(email, subID string) error {
	n.emails = append(n.emails, email)
	n.subIDs = append(n.subIDs, subID)
	return nil
}

func newTestService(repo *fakeRepository, provider *fakeProvider, tracker *recordingTracker, notifier *recordingNotifier) *Service {
	if provider == nil {
		provider = &fakeProvider{subscriptions: map[string]*SubscriptionPayload{}}
	}
	var tr ConversionTracker = NoopTracker{}
	if tracker != nil {
		tr = tracker
	}
	var n PastDueNotifier = NoopNotifier{}
	if notifier != nil {
		n = notifier
	}
	return NewService(repo, provider, tr, n)
}

func amountPtr(v int64) *int64 { return &v }

func TestHandleCheckoutCompleted_FullFlow(t *testing.T) {
	repo := newFakeRepository()
	repo.mappings["price_pro"] = &models.BillingPlanMapping{PriceID: "price_pro", InternalPlan: "pro", IsActive: true}
	provider := &fakeProvider{subscriptions: map[string]*SubscriptionPayload{
		"sub_1": {
			ID:                 "sub_1",
			Customer:           "cus_1",
			Status:             "active",
			Items:              []SubscriptionItem{{PriceID: "price_pro", UnitAmount: amountPtr(2900), Currency: "eur"}},
			CurrentPeriodStart: 1700000000,
			CurrentPeriodEnd:   1702592000,
		},
	}}
	tracker := &recordingTracker{}
	svc := newTestService(repo, provider, tracker, nil)

	eventAt := UnixToTimePtr(1700000100)
	payload := &CheckoutPayload{
		ID:                "cs_1",
		ClientReferenceID: "1",
		Customer:          "cus_1",
		CustomerEmail:     "buyer@example.com",
		Subscription:      "sub_1",
		AmountTotal:       2900,
		Currency:          "eur",
		Metadata: map[string]string{
			"attribution": `{"utm_source":"newsletter"}`,
		},
	}

	if err := svc.HandleCheckoutCompleted(context.Background(), payload, eventAt); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}

	customer, err := repo.GetCustomerByUserID(1)
	if err != nil {
		t.Fatalf("expected customer row for user 1: %v", err)
	}
	if customer.ExternalCustomerID != "cus_1" {
		t.Fatalf("expected external customer cus_1, got %q", customer.ExternalCustomerID)
	}

	sub, err := repo.GetSubscription("sub_1")
	if err != nil {
		t.Fatalf("expected subscription row: %v", err)
	}
	if sub.UserID != 1 || sub.Status != models.SubStatusActive || sub.PriceID != "price_pro" {
		t.Fatalf("unexpected subscription record: %+v", sub)
	}
	if sub.PriceAmount == nil || *sub.PriceAmount != 2900 || sub.PriceCurrency == nil || *sub.PriceCurrency != "eur" {
		t.Fatalf("unexpected price on record: %v %v", sub.PriceAmount, sub.PriceCurrency)
	}
	if sub.AttributionData["utm_source"] != "newsletter" {
		t.Fatalf("expected attribution to be stored, got %v", sub.AttributionData)
	}
	if sub.ProviderEventAt == nil || !sub.ProviderEventAt.Equal(*eventAt) {
		t.Fatalf("expected provider event time %v, got %v", eventAt, sub.ProviderEventAt)
	}

	us, _ := repo.GetOrCreateUserSettings(1)
	if us.Plan != "pro" {
		t.Fatalf("expected plan pro after checkout, got %q", us.Plan)
	}

	if len(tracker.events) != 1 {
		t.Fatalf("expected one tracked purchase, got %d", len(tracker.events))
	}
	ev := tracker.events[0]
	if ev.Value != 2900 || ev.Currency != "eur" || ev.UserID != 1 {
		t.Fatalf("unexpected tracked event: %+v", ev)
	}
	if ev.Attribution["utm_source"] != "newsletter" {
		t.Fatalf("expected attribution on tracked event, got %v", ev.Attribution)
	}
}

func TestHandleCheckoutCompleted_Redelivery(t *testing.T) {
	repo := newFakeRepository()
	provider := &fakeProvider{subscriptions: map[string]*SubscriptionPayload{
		"sub_1": {
			ID:       "sub_1",
			Customer: "cus_1",
			Status:   "active",
			Items:    []SubscriptionItem{{PriceID: "price_pro", UnitAmount: amountPtr(2900), Currency: "usd"}},
		},
	}}
	svc := newTestService(repo, provider, nil, nil)

	payload := &CheckoutPayload{
		ID:                "cs_1",
		ClientReferenceID: "7",
		Customer:          "cus_1",
		Subscription:      "sub_1",
	}
	eventAt := UnixToTimePtr(1700000100)

	if err := svc.HandleCheckoutCompleted(context.Background(), payload, eventAt); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.HandleCheckoutCompleted(context.Background(), payload, eventAt); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	if len(repo.customers) != 1 {
		t.Fatalf("expected exactly one customer row, got %d", len(repo.customers))
	}
	if len(repo.subscriptions) != 1 {
		t.Fatalf("expected exactly one subscription row, got %d", len(repo.subscriptions))
	}
}

func TestHandleCheckoutCompleted_NoLocalUser(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil, nil, nil)

	payload := &CheckoutPayload{ID: "cs_2", ClientReferenceID: "not-a-user", Customer: "cus_2"}
	if err := svc.HandleCheckoutCompleted(context.Background(), payload, nil); err != nil {
		t.Fatalf("expected unresolvable user reference to be absorbed, got %v", err)
	}
	if len(repo.customers) != 0 {
		t.Fatalf("expected no customer rows, got %d", len(repo.customers))
	}
}

func TestHandleCheckoutCompleted_MalformedAttribution(t *testing.T) {
	repo := newFakeRepository()
	provider := &fakeProvider{subscriptions: map[string]*SubscriptionPayload{
		"sub_1": {
			ID:       "sub_1",
			Customer: "cus_1",
			Status:   "active",
			Items:    []SubscriptionItem{{PriceID: "price_pro", UnitAmount: amountPtr(2900), Currency: "usd"}},
		},
	}}
	svc := newTestService(repo, provider, nil, nil)

	payload := &CheckoutPayload{
		ID:                "cs_1",
		ClientReferenceID: "1",
		Customer:          "cus_1",
		Subscription:      "sub_1",
		Metadata: map[string]string{
			"attribution": `{"utm_source": broken`,
		},
	}
	if err := svc.HandleCheckoutCompleted(context.Background(), payload, nil); err != nil {
		t.Fatalf("expected unparsable attribution to be absorbed, got %v", err)
	}

	sub, err := repo.GetSubscription("sub_1")
	if err != nil {
		t.Fatalf("expected subscription to still be created: %v", err)
	}
	if sub.AttributionData == nil || len(sub.AttributionData) != 0 {
		t.Fatalf("expected empty attribution map, got %v", sub.AttributionData)
	}
}

func TestHandleCheckoutCompleted_CustomerRewrite(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil, nil, nil)

	first := &CheckoutPayload{ID: "cs_1", ClientReferenceID: "3", Customer: "cus_old"}
	second := &CheckoutPayload{ID: "cs_2", ClientReferenceID: "3", Customer: "cus_new"}

	if err := svc.HandleCheckoutCompleted(context.Background(), first, nil); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	if err := svc.HandleCheckoutCompleted(context.Background(), second, nil); err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}

	if len(repo.customers) != 1 {
		t.Fatalf("expected user to keep a single customer row, got %d", len(repo.customers))
	}
	c, _ := repo.GetCustomerByUserID(3)
	if c.ExternalCustomerID != "cus_new" {
		t.Fatalf("expected external id to be rewritten to cus_new, got %q", c.ExternalCustomerID)
	}
}

func TestHandleSubscriptionEvent_UnknownCustomerIsAbsorbed(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil, nil, nil)

	p := &SubscriptionPayload{ID: "sub_x", Customer: "cus_unknown", Status: "active"}
	if err := svc.HandleSubscriptionEvent(context.Background(), p, nil); err != nil {
		t.Fatalf("expected unknown customer to be absorbed, got %v", err)
	}
	if len(repo.subscriptions) != 0 {
		t.Fatalf("expected no subscription rows, got %d", len(repo.subscriptions))
	}
}

func TestHandleSubscriptionEvent_StaleEventSkipped(t *testing.T) {
	repo := newFakeRepository()
	repo.customers[1] = &models.BillingCustomer{ID: 1, UserID: 1, ExternalCustomerID: "cus_1"}
	svc := newTestService(repo, nil, nil, nil)

	newer := UnixToTimePtr(1700000200)
	older := UnixToTimePtr(1700000100)

	current := &SubscriptionPayload{ID: "sub_1", Customer: "cus_1", Status: "active"}
	if err := svc.HandleSubscriptionEvent(context.Background(), current, newer); err != nil {
		t.Fatalf("initial event failed: %v", err)
	}

	stale := &SubscriptionPayload{ID: "sub_1", Customer: "cus_1", Status: "canceled"}
	if err := svc.HandleSubscriptionEvent(context.Background(), stale, older); err != nil {
		t.Fatalf("stale event should be absorbed, got %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusActive {
		t.Fatalf("expected stale cancel to be skipped, status = %q", sub.Status)
	}

	// Equal timestamps are a redelivery of the same event and must overwrite.
	redelivered := &SubscriptionPayload{ID: "sub_1", Customer: "cus_1", Status: "canceled"}
	if err := svc.HandleSubscriptionEvent(context.Background(), redelivered, newer); err != nil {
		t.Fatalf("redelivered event failed: %v", err)
	}
	sub, _ = repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusCanceled {
		t.Fatalf("expected equal-timestamp event to overwrite, status = %q", sub.Status)
	}
}

func TestHandleSubscriptionEvent_AttributionPreserved(t *testing.T) {
	repo := newFakeRepository()
	repo.customers[1] = &models.BillingCustomer{ID: 1, UserID: 1, ExternalCustomerID: "cus_1"}
	repo.subscriptions["sub_1"] = &models.BillingSubscription{
		ID:                 "sub_1",
		UserID:             1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubStatusActive,
		AttributionData:    models.JSONMap{"utm_source": "newsletter"},
	}
	svc := newTestService(repo, nil, nil, nil)

	p := &SubscriptionPayload{ID: "sub_1", Customer: "cus_1", Status: "past_due"}
	if err := svc.HandleSubscriptionEvent(context.Background(), p, nil); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusPastDue {
		t.Fatalf("expected status past_due, got %q", sub.Status)
	}
	if sub.AttributionData["utm_source"] != "newsletter" {
		t.Fatalf("expected attribution to survive the update, got %v", sub.AttributionData)
	}
}

func TestHandleSubscriptionDeleted(t *testing.T) {
	repo := newFakeRepository()
	repo.customers[1] = &models.BillingCustomer{ID: 1, UserID: 1, ExternalCustomerID: "cus_1"}
	repo.subscriptions["sub_1"] = &models.BillingSubscription{
		ID:                 "sub_1",
		UserID:             1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubStatusActive,
	}
	svc := newTestService(repo, nil, nil, nil)

	p := &SubscriptionPayload{
		ID:       "sub_1",
		Customer: "cus_1",
		Status:   "canceled",
		CancellationDetails: &CancellationDetails{
			Reason:   "cancellation_requested",
			Feedback: "too_expensive",
		},
	}
	if err := svc.HandleSubscriptionDeleted(context.Background(), p, nil); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusCanceled {
		t.Fatalf("expected canceled status, got %q", sub.Status)
	}
	if sub.CanceledAt == nil || sub.EndedAt == nil {
		t.Fatalf("expected canceled_at/ended_at to be filled, got %v/%v", sub.CanceledAt, sub.EndedAt)
	}
	if sub.CancellationFeedback == nil || *sub.CancellationFeedback != "too_expensive" {
		t.Fatalf("expected cancellation feedback to be stored, got %v", sub.CancellationFeedback)
	}
}

func TestHandleSubscriptionDeleted_UnknownCustomerFallback(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_orphan"] = &models.BillingSubscription{
		ID:     "sub_orphan",
		UserID: 9,
		Status: models.SubStatusActive,
	}
	svc := newTestService(repo, nil, nil, nil)

	p := &SubscriptionPayload{ID: "sub_orphan", Customer: "cus_gone", Status: "canceled"}
	if err := svc.HandleSubscriptionDeleted(context.Background(), p, nil); err != nil {
		t.Fatalf("fallback delete failed: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_orphan")
	if sub.Status != models.SubStatusCanceled {
		t.Fatalf("expected status-only fallback to cancel, got %q", sub.Status)
	}
}

func TestHandleInvoicePaymentFailed(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_1"] = &models.BillingSubscription{ID: "sub_1", UserID: 4, Status: models.SubStatusActive}
	repo.emails[4] = "user4@example.com"
	notifier := &recordingNotifier{}
	svc := newTestService(repo, nil, nil, notifier)

	p := &InvoicePayload{ID: "in_1", Customer: "cus_1", Subscription: "sub_1"}
	if err := svc.HandleInvoicePaymentFailed(context.Background(), p); err != nil {
		t.Fatalf("payment-failed handler errored: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusPastDue {
		t.Fatalf("expected past_due status, got %q", sub.Status)
	}
	if len(notifier.emails) != 1 || notifier.emails[0] != "user4@example.com" {
		t.Fatalf("expected one past-due email to user4, got %v", notifier.emails)
	}
}

func TestHandleInvoicePaymentFailed_NoSubscriptionRef(t *testing.T) {
	repo := newFakeRepository()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, nil, nil, notifier)

	p := &InvoicePayload{ID: "in_2", Customer: "cus_1"}
	if err := svc.HandleInvoicePaymentFailed(context.Background(), p); err != nil {
		t.Fatalf("expected missing subscription ref to be absorbed, got %v", err)
	}
	if len(notifier.emails) != 0 {
		t.Fatalf("expected no notification, got %v", notifier.emails)
	}
}

func TestHandleInvoicePaymentFailed_EndedSubscriptionIgnored(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_1"] = &models.BillingSubscription{ID: "sub_1", UserID: 4, Status: models.SubStatusCanceled}
	repo.emails[4] = "user4@example.com"
	notifier := &recordingNotifier{}
	svc := newTestService(repo, nil, nil, notifier)

	p := &InvoicePayload{ID: "in_3", Subscription: "sub_1"}
	if err := svc.HandleInvoicePaymentFailed(context.Background(), p); err != nil {
		t.Fatalf("payment-failed handler errored: %v", err)
	}

	sub, _ := repo.GetSubscription("sub_1")
	if sub.Status != models.SubStatusCanceled {
		t.Fatalf("expected canceled subscription to stay canceled, got %q", sub.Status)
	}
	if len(notifier.emails) != 0 {
		t.Fatalf("expected no email for an ended subscription, got %v", notifier.emails)
	}
}

func TestHandleInvoicePaymentFailed_OptOut(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_1"] = &models.BillingSubscription{ID: "sub_1", UserID: 4, Status: models.SubStatusActive}
	repo.settings[4] = &models.UserSettings{UserID: 4, Plan: "pro", EmailOnPastDue: false}
	repo.emails[4] = "user4@example.com"
	notifier := &recordingNotifier{}
	svc := newTestService(repo, nil, nil, notifier)

	p := &InvoicePayload{ID: "in_1", Subscription: "sub_1"}
	if err := svc.HandleInvoicePaymentFailed(context.Background(), p); err != nil {
		t.Fatalf("payment-failed handler errored: %v", err)
	}
	if len(notifier.emails) != 0 {
		t.Fatalf("expected opt-out to suppress email, got %v", notifier.emails)
	}
}

func TestCreatePortalSession(t *testing.T) {
	repo := newFakeRepository()
	repo.customers[5] = &models.BillingCustomer{ID: 1, UserID: 5, ExternalCustomerID: "cus_5"}
	provider := &fakeProvider{
		subscriptions: map[string]*SubscriptionPayload{},
		portalURL:     "https://billing.example.com/session/abc",
	}
	svc := newTestService(repo, provider, nil, nil)

	url, err := svc.CreatePortalSession(context.Background(), 5, "https://app.example.com/settings")
	if err != nil {
		t.Fatalf("CreatePortalSession failed: %v", err)
	}
	if url != "https://billing.example.com/session/abc" {
		t.Fatalf("unexpected portal url %q", url)
	}
	if provider.portalCustomer != "cus_5" {
		t.Fatalf("expected portal request for cus_5, got %q", provider.portalCustomer)
	}
	if provider.portalReturnURL != "https://app.example.com/settings" {
		t.Fatalf("unexpected return url %q", provider.portalReturnURL)
	}
}

func TestCreatePortalSession_NoCustomer(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.CreatePortalSession(context.Background(), 42, "")
	if !errors.Is(err, ErrNoBillingCustomer) {
		t.Fatalf("expected ErrNoBillingCustomer, got %v", err)
	}
}

func TestReconcileUserPlan(t *testing.T) {
	repo := newFakeRepository()
	repo.mappings["price_pro"] = &models.BillingPlanMapping{PriceID: "price_pro", InternalPlan: "pro", IsActive: true}
	repo.mappings["price_business"] = &models.BillingPlanMapping{PriceID: "price_business", InternalPlan: "business", IsActive: true}
	repo.subscriptions["sub_a"] = &models.BillingSubscription{ID: "sub_a", UserID: 1, PriceID: "price_pro", Status: models.SubStatusActive}
	repo.subscriptions["sub_b"] = &models.BillingSubscription{ID: "sub_b", UserID: 1, PriceID: "price_business", Status: models.SubStatusTrialing}
	repo.subscriptions["sub_c"] = &models.BillingSubscription{ID: "sub_c", UserID: 1, PriceID: "price_business", Status: models.SubStatusCanceled}
	svc := newTestService(repo, nil, nil, nil)

	plan, err := svc.ReconcileUserPlan(context.Background(), 1)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan != "business" {
		t.Fatalf("expected best entitling plan business, got %q", plan)
	}

	us, _ := repo.GetOrCreateUserSettings(1)
	if us.Plan != "business" {
		t.Fatalf("expected settings plan business, got %q", us.Plan)
	}
}

func TestReconcileUserPlan_DowngradeToFree(t *testing.T) {
	repo := newFakeRepository()
	repo.settings[2] = &models.UserSettings{UserID: 2, Plan: "pro", EmailOnPastDue: true}
	repo.subscriptions["sub_x"] = &models.BillingSubscription{ID: "sub_x", UserID: 2, PriceID: "price_pro", Status: models.SubStatusCanceled}
	svc := newTestService(repo, nil, nil, nil)

	plan, err := svc.ReconcileUserPlan(context.Background(), 2)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan != "free" {
		t.Fatalf("expected downgrade to free, got %q", plan)
	}
}

func TestReconcileUserPlan_UnmappedPriceSkipped(t *testing.T) {
	repo := newFakeRepository()
	repo.subscriptions["sub_y"] = &models.BillingSubscription{ID: "sub_y", UserID: 3, PriceID: "price_unknown", Status: models.SubStatusActive}
	svc := newTestService(repo, nil, nil, nil)

	plan, err := svc.ReconcileUserPlan(context.Background(), 3)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan != "free" {
		t.Fatalf("expected unmapped price to yield free, got %q", plan)
	}
}

func TestIsStale(t *testing.T) {
	t1 := time.Unix(1700000100, 0).UTC()
	t2 := time.Unix(1700000200, 0).UTC()

	stored := &models.BillingSubscription{ProviderEventAt: &t2}
	if !isStale(stored, &t1) {
		t.Fatalf("expected older event against newer stored state to be stale")
	}
	if isStale(stored, &t2) {
		t.Fatalf("expected equal timestamps to not be stale")
	}
	if isStale(nil, &t1) {
		t.Fatalf("expected missing record to never be stale")
	}
	if isStale(&models.BillingSubscription{}, &t1) {
		t.Fatalf("expected record without event time to never be stale")
	}
	if isStale(stored, nil) {
		t.Fatalf("expected event without timestamp to never be stale")
	}
}
