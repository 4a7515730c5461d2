package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/connect"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

type connectInitiateRequest struct {
	Provider string `json:"provider"`
}

// HandleConnectInitiate starts provider onboarding for the authenticated
// company and returns the URL its user must visit.
func HandleConnectInitiate(c *fiber.Ctx) error {
	company, ok := currentCompany(c)
	if !ok {
		return nil
	}

	var req connectInitiateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}

	authorizeURL, err := connectService.Initiate(c.Context(), company, req.Provider)
	if err != nil {
		if errors.Is(err, connect.ErrUnknownProvider) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_provider", "Provider must be stripe, paypal or square")
		}
		var authErr *payments.AuthorizationError
		if errors.As(err, &authErr) {
			log.Printf("connect initiate %s for company %d: %v", req.Provider, company.ID, err)
			return jsonError(c, fiber.StatusBadGateway, "provider_error", "The payment provider rejected the request")
		}
		log.Printf("connect initiate %s for company %d: %v", req.Provider, company.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Onboarding could not be started")
	}

	return jsonSuccess(c, fiber.Map{
		"provider":      req.Provider,
		"authorize_url": authorizeURL,
	})
}

type connectDisconnectRequest struct {
	Provider string `json:"provider"`
}

// HandleConnectDisconnect clears the stored credentials for one provider.
func HandleConnectDisconnect(c *fiber.Ctx) error {
	company, ok := currentCompany(c)
	if !ok {
		return nil
	}

	var req connectDisconnectRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}

	if err := connectService.Disconnect(company, req.Provider); err != nil {
		if errors.Is(err, connect.ErrUnknownProvider) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_provider", "Provider must be stripe, paypal or square")
		}
		log.Printf("connect disconnect %s for company %d: %v", req.Provider, company.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Provider could not be disconnected")
	}

	return jsonSuccess(c, fiber.Map{
		"provider":  req.Provider,
		"connected": false,
	})
}
