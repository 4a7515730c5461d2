package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/connect"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

// HandleConnectCallback finishes provider onboarding when the provider sends
// the user back. Renders an HTML result page; onboarding that the provider
// reports as incomplete redirects straight back to the provider.
func HandleConnectCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	state := c.Query("state")
	code := c.Query("code")

	result, err := connectService.HandleCallback(c.Context(), provider, code, state)
	if err != nil {
		return renderCallbackError(c, provider, err)
	}

	if !result.Connected && result.RedirectURL != "" {
		// Provider needs another onboarding round trip.
		return c.Redirect(result.RedirectURL, fiber.StatusFound)
	}

	return c.Render("connect_result", fiber.Map{
		"Title":       "Payment provider connected",
		"Success":     true,
		"Provider":    result.Provider,
		"CompanyName": result.CompanyName,
		"Message":     "You can close this window and return to the app.",
	})
}

// HandleConnectPayPalEmailForm shows the email-variant form. The CSRF state
// from the initiate step rides along as a hidden field.
func HandleConnectPayPalEmailForm(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" {
		return renderCallbackError(c, "paypal", connect.ErrStateNotFound)
	}

	return c.Render("paypal_email_form", fiber.Map{
		"Title": "Connect PayPal",
		"State": state,
		"Msg":   flash.Get(c),
	})
}

// HandleConnectPayPalEmailSubmit stores the payee email posted by the form.
func HandleConnectPayPalEmailSubmit(c *fiber.Ctx) error {
	state := c.FormValue("state")
	email := c.FormValue("email")

	result, err := connectService.SavePayPalEmail(c.Context(), state, email)
	if err != nil {
		var authErr *payments.AuthorizationError
		if errors.As(err, &authErr) {
			// Bad address: send the user back to the form with a message.
			fm := fiber.Map{"type": "error", "message": "Please enter a valid email address."}
			return flash.WithError(c, fm).Redirect("/connect/paypal/email?state=" + state)
		}
		return renderCallbackError(c, "paypal", err)
	}

	return c.Render("connect_result", fiber.Map{
		"Title":       "PayPal connected",
		"Success":     true,
		"Provider":    result.Provider,
		"CompanyName": result.CompanyName,
		"Message":     "Payments will be sent to " + email + ". You can close this window.",
	})
}

func renderCallbackError(c *fiber.Ctx, provider string, err error) error {
	status := fiber.StatusBadGateway
	message := "The payment provider rejected the connection. Please restart the setup from the app."

	switch {
	case errors.Is(err, connect.ErrStateNotFound):
		status = fiber.StatusGone
		message = "This connection link is invalid or has expired. Please restart the setup from the app."
	case errors.Is(err, connect.ErrUnknownProvider):
		status = fiber.StatusNotFound
		message = "Unknown payment provider."
	default:
		log.Printf("connect callback %s: %v", provider, err)
	}

	return c.Status(status).Render("connect_result", fiber.Map{
		"Title":    "Connection failed",
		"Success":  false,
		"Provider": provider,
		"Message":  message,
	})
}
