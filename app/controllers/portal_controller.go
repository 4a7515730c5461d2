package controllers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ratelimit"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/viewmodel"
)

// renderNotFound is the portal's one page for every unusable token.
func renderNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).Render("not_found", fiber.Map{
		"Title": "Not found",
	})
}

// HandleInvoicePage renders the payment page for one invoice. The embedded
// provider widgets only ever receive publishable keys.
func HandleInvoicePage(c *fiber.Ctx) error {
	rawToken := c.Params("token")
	if err := lookupLimiter.Check(GetClientIP(c)); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return c.Status(fiber.StatusTooManyRequests).Render("not_found", fiber.Map{
				"Title": "Too many requests",
			})
		}
		log.Printf("rate limit check: %v", err)
		return renderNotFound(c)
	}
	if !token.IsWellFormedToken(rawToken) {
		return renderNotFound(c)
	}

	repo := repository.GetGlobalFactory().GetInvoiceRepository()
	invoice, err := repo.GetByToken(rawToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			recordMiss(c)
		} else {
			log.Printf("invoice page lookup: %v", err)
		}
		return renderNotFound(c)
	}

	markViewed(invoice)

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(invoice.CompanyID)
	if err != nil {
		log.Printf("company for invoice %d: %v", invoice.ID, err)
		return renderNotFound(c)
	}

	now := time.Now()
	return c.Render("invoice", fiber.Map{
		"Title":                "Invoice " + invoice.ExternalID,
		"Company":              viewmodel.FromCompany(company),
		"Invoice":              viewmodel.FromInvoice(invoice, now),
		"Token":                invoice.InvoiceToken,
		"StripePublishableKey": stripeClient.PublishableKey,
	})
}

// HandleCustomerPortalPage renders every invoice behind one customer token.
func HandleCustomerPortalPage(c *fiber.Ctx) error {
	rawToken := c.Params("token")
	if err := lookupLimiter.Check(GetClientIP(c)); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return c.Status(fiber.StatusTooManyRequests).Render("not_found", fiber.Map{
				"Title": "Too many requests",
			})
		}
		log.Printf("rate limit check: %v", err)
		return renderNotFound(c)
	}
	if !token.IsWellFormedToken(rawToken) {
		return renderNotFound(c)
	}

	invoices, err := repository.GetGlobalFactory().GetInvoiceRepository().GetByCustomerToken(rawToken)
	if err != nil {
		log.Printf("customer portal lookup: %v", err)
		return renderNotFound(c)
	}
	if len(invoices) == 0 {
		recordMiss(c)
		return renderNotFound(c)
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(invoices[0].CompanyID)
	if err != nil {
		log.Printf("company for customer portal: %v", err)
		return renderNotFound(c)
	}

	return c.Render("customer_portal", fiber.Map{
		"Title":  company.Name + " - Your invoices",
		"Portal": viewmodel.BuildCustomerPortal(company, invoices, time.Now()),
		"Token":  rawToken,
	})
}
