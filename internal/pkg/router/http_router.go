package router

import (
	"github.com/courselyhq/coursely/app/controllers"
	"github.com/courselyhq/coursely/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Provider-facing webhook endpoints. No auth middleware here: the
	// signature over the raw body is the authentication.
	app.Post(constants.PaymentWebhookRoute, controllers.HandlePaymentWebhook)
	app.Post(constants.AffiliateWebhookRoute, controllers.HandleAffiliateWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
