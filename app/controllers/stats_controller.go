package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/courselyhq/coursely/internal/pkg/metrics/counter"
)

// HandleWebhookStats reports received/processed/failed webhook totals per
// source. Served behind the metrics basic auth.
func HandleWebhookStats(c *fiber.Ctx) error {
	stats := fiber.Map{}
	for _, source := range []string{webhookSourcePayments, webhookSourceAffiliate} {
		received, processed, failed, err := counter.Snapshot(source)
		if err != nil {
			log.Printf("webhook stats for %s failed: %v", source, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
		}
		stats[source] = fiber.Map{
			"received":  received,
			"processed": processed,
			"failed":    failed,
		}
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
