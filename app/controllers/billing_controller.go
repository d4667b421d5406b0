package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/courselyhq/coursely/internal/pkg/billing"
	"github.com/courselyhq/coursely/internal/pkg/cache"
	"github.com/courselyhq/coursely/internal/pkg/database"
	"github.com/courselyhq/coursely/internal/pkg/env"
	"github.com/courselyhq/coursely/internal/pkg/metrics/counter"
	"github.com/courselyhq/coursely/internal/pkg/usercontext"
)

const paymentSignatureHeader = "X-Payment-Signature"

const webhookSourcePayments = "payments"

const planCacheTTL = 12 * time.Hour

// HandlePaymentWebhook receives provider webhook events, verifies the
// signature over the raw body and dispatches to the reconciliation engine.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	client := billing.NewPaymentClientFromEnv()
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")
	if !client.IsConfigured() && strings.TrimSpace(secret) == "" {
		// Billing is not set up for this deployment at all.
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "billing_not_configured"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(paymentSignatureHeader))
	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	_ = counter.AddWebhookReceived(webhookSourcePayments)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB())
	dispatcher := billing.NewDispatcher(svc)
	if err := dispatcher.Dispatch(ctx, rawBody); err != nil {
		if errors.Is(err, billing.ErrInvalidPayload) {
			_ = counter.AddWebhookFailed(webhookSourcePayments)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		log.Printf("payment webhook processing failed: %v", err)
		_ = counter.AddWebhookFailed(webhookSourcePayments)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	_ = counter.AddWebhookProcessed(webhookSourcePayments)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

type portalSessionRequest struct {
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// HandleBillingPortal opens a provider-hosted self-service billing portal
// session for the authenticated user.
func HandleBillingPortal(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	userID := usercontext.GetUserID(c)

	var req portalSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_return_url"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB())
	url, err := svc.CreatePortalSession(ctx, userID, req.ReturnURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoBillingCustomer) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "no_billing_customer",
				"message": "No subscription on file for this account",
			})
		}
		log.Printf("portal session for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "portal_session_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleBillingResync recomputes the authenticated user's effective plan from
// their stored subscriptions.
func HandleBillingResync(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	userID := usercontext.GetUserID(c)

	// Drop the cached value first so a failed recompute cannot keep serving
	// stale state.
	if err := cache.Delete(cache.UserPlanKey(userID)); err != nil {
		log.Printf("plan cache invalidation for user %d failed: %v", userID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB())
	plan, err := svc.ReconcileUserPlan(ctx, userID)
	if err != nil {
		log.Printf("plan resync for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resync_failed"})
	}

	// Best-effort cache refresh; readers fall back to the DB.
	if err := cache.Set(cache.UserPlanKey(userID), plan, planCacheTTL); err != nil {
		log.Printf("plan cache refresh for user %d failed: %v", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plan": plan})
}

// HandleBillingPlan returns the authenticated user's effective plan, serving
// the cached value when present and reconciling from the store otherwise.
func HandleBillingPlan(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	userID := usercontext.GetUserID(c)

	if plan, err := cache.Get(cache.UserPlanKey(userID)); err == nil && plan != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"plan": plan})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB())
	plan, err := svc.ReconcileUserPlan(ctx, userID)
	if err != nil {
		log.Printf("plan lookup for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "plan_lookup_failed"})
	}

	if err := cache.Set(cache.UserPlanKey(userID), plan, planCacheTTL); err != nil {
		log.Printf("plan cache refresh for user %d failed: %v", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plan": plan})
}
