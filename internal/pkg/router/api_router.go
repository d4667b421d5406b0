package router

import (
	"github.com/courselyhq/coursely/app/controllers"
	"github.com/courselyhq/coursely/internal/pkg/constants"
	"github.com/courselyhq/coursely/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// API v1 routes, authenticated by user API key
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	v1.Post(constants.BillingPortalRoute, controllers.HandleBillingPortal)
	v1.Post(constants.BillingResyncRoute, controllers.HandleBillingResync)
	v1.Get(constants.BillingPlanRoute, controllers.HandleBillingPlan)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
