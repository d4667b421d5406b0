package constants

// Static route constants
const (
	PaymentWebhookRoute   = "/webhooks/payments"
	AffiliateWebhookRoute = "/webhooks/affiliate"
	BillingPortalRoute    = "/billing/portal"
	BillingResyncRoute    = "/billing/resync"
	BillingPlanRoute      = "/billing/plan"
)
