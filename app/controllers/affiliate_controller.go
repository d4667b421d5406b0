package controllers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/courselyhq/coursely/internal/pkg/affiliate"
	"github.com/courselyhq/coursely/internal/pkg/billing"
	"github.com/courselyhq/coursely/internal/pkg/database"
	"github.com/courselyhq/coursely/internal/pkg/env"
	"github.com/courselyhq/coursely/internal/pkg/metrics/counter"
)

const affiliateSignatureHeader = "X-Affiliate-Signature"

const webhookSourceAffiliate = "affiliate"

// HandleAffiliateWebhook ingests referral/commission events. Unlike the
// payment webhook this always answers 200: the affiliate channel is
// non-critical and provider retries would only repeat the same failure.
func HandleAffiliateWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(affiliateSignatureHeader))
	secret := env.GetEnv("AFFILIATE_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	_ = counter.AddWebhookReceived(webhookSourceAffiliate)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := affiliate.NewService(database.GetDB())
	if err := svc.HandleEvent(ctx, rawBody); err != nil {
		log.Printf("affiliate webhook processing failed: %v", err)
		_ = counter.AddWebhookFailed(webhookSourceAffiliate)
	} else {
		_ = counter.AddWebhookProcessed(webhookSourceAffiliate)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
