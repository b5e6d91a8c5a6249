package router

import (
	"github.com/borikenlabs/athmovil/app/controllers"
	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/borikenlabs/athmovil/internal/pkg/athm"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// InstallRouter registers the webhook ingress and the operator API.
func InstallRouter(app *fiber.App, store repository.Store, p *athm.Processor, r *athm.Reconciler, o *athm.RefundOrchestrator) {
	controllers.InitializeControllers(store, p, r, o)

	app.Post("/webhook/athm", controllers.HandleWebhook)

	api := app.Group("/api", limiter.New())
	v1 := api.Group("/v1")
	v1.Get("/payments", controllers.HandleListPayments)
	v1.Get("/payments/:ecommerceID", controllers.HandleGetPayment)
	v1.Post("/payments/:ecommerceID/sync", controllers.HandleSyncPayment)
	v1.Post("/payments/:ecommerceID/refund", controllers.HandleRefundPayment)
	v1.Post("/events/:id/reprocess", controllers.HandleReprocessEvent)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
