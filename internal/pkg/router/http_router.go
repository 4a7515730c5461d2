package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/invoiceportal/InvoicePortal/app/controllers"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/constants"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Build the controller service graph
	controllers.InitializeControllers()

	// Provider onboarding callbacks (browser-facing, HTML)
	app.Get("/connect/paypal/email", controllers.HandleConnectPayPalEmailForm)
	app.Post("/connect/paypal/email", controllers.HandleConnectPayPalEmailSubmit)
	app.Get("/connect/:provider/callback", controllers.HandleConnectCallback)

	// Customer portal pages (token addressed, HTML)
	app.Get(constants.PayInvoiceRoute+":token", controllers.HandleInvoicePage)
	app.Get(constants.PayCustomerRoute+":token", controllers.HandleCustomerPortalPage)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
