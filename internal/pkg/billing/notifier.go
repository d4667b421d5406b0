package billing

import (
	"fmt"

	"github.com/courselyhq/coursely/internal/pkg/env"
	"github.com/courselyhq/coursely/internal/pkg/mail"
)

// PastDueNotifier tells a user that a renewal payment failed. Delivery is
// best effort: a failed notification never fails the webhook.
type PastDueNotifier interface {
	NotifyPaymentFailed(email string, subscriptionID string) error
}

type smtpNotifier struct{}

func (smtpNotifier) NotifyPaymentFailed(email string, subscriptionID string) error {
	domain := env.GetEnv("PUBLIC_DOMAIN", "localhost")
	subject := "Your subscription payment failed"
	body := fmt.Sprintf(
		"<p>We could not collect the latest payment for your subscription.</p>"+
			"<p>Please update your payment method at <a href=\"https://%s/account/billing\">https://%s/account/billing</a> "+
			"to keep your courses online.</p>"+
			"<p>Reference: %s</p>",
		domain, domain, subscriptionID,
	)
	return mail.SendMail(email, subject, body)
}

// NoopNotifier swallows notifications. Used when no mailer is configured and
// as the default in tests.
type NoopNotifier struct{}

func (NoopNotifier) NotifyPaymentFailed(string, string) error { return nil }

// NewPastDueNotifierFromEnv returns an SMTP backed notifier when a mail host
// is configured, otherwise a no-op.
func NewPastDueNotifierFromEnv() PastDueNotifier {
	if !mail.IsConfigured() {
		return NoopNotifier{}
	}
	return smtpNotifier{}
}
