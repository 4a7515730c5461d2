package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/invoiceportal/InvoicePortal/app/controllers"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Invoice portal API",
		})
	})

	v1 := api.Group("/v1")

	// Company registration is the one master-key endpoint.
	v1.Post("/companies", middleware.MasterKeyAuthMiddleware(), controllers.HandleRegisterCompany)

	// Server-to-server endpoints for the client app, per-company API key.
	authed := v1.Group("/", middleware.APIKeyAuthMiddleware())
	authed.Get("/company", controllers.HandleGetCompany)
	authed.Post("/company/logo", controllers.HandleUploadCompanyLogo)
	authed.Get("/company/statistics", controllers.HandleCompanyStatistics)

	authed.Post("/connect/initiate", controllers.HandleConnectInitiate)
	authed.Post("/connect/disconnect", controllers.HandleConnectDisconnect)

	authed.Post("/invoices", controllers.HandlePublishInvoice)
	authed.Get("/payments/unsynced", controllers.HandlePullUnsyncedPayments)
	authed.Post("/payments/ack", controllers.HandleAckSyncedPayments)

	// Customer-facing endpoints, addressed by unguessable token and guarded
	// by the failed-lookup limiter inside the handlers.
	pay := api.Group("/pay")
	pay.Get("/invoice/:token", controllers.HandleGetInvoiceByToken)
	pay.Post("/invoice/:token/checkout", controllers.HandleCreateCheckout)
	pay.Post("/invoice/:token/confirm", controllers.HandleConfirmPayment)
	pay.Get("/customer/:token", controllers.HandleGetCustomerPortal)
	pay.Get("/customer/:token/payments", controllers.HandleGetCustomerPayments)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
