package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/companycontext"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/logo"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
)

type registerCompanyRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

// HandleRegisterCompany creates a company tenant and issues its API key.
// The key is returned exactly once; only its indexed column is stored.
func HandleRegisterCompany(c *fiber.Ctx) error {
	if !companycontext.IsMaster(c) {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Registration requires the master key")
	}

	var req registerCompanyRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}

	apiKey, err := token.GenerateAPIKey()
	if err != nil {
		log.Printf("company registration: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "token_generation_failed", "Could not generate API key")
	}

	company := &models.Company{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		APIKey:       apiKey,
	}
	if err := company.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	repo := repository.GetGlobalFactory().GetCompanyRepository()
	if err := repo.Create(company); err != nil {
		log.Printf("company registration: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Could not create company")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"company": fiber.Map{
			"id":            company.ID,
			"name":          company.Name,
			"contact_email": company.ContactEmail,
		},
		"api_key": apiKey,
	})
}

// HandleGetCompany returns the authenticated company's own profile, with
// provider availability flags instead of credentials.
func HandleGetCompany(c *fiber.Ctx) error {
	company, ok := currentCompany(c)
	if !ok {
		return nil
	}

	return jsonSuccess(c, fiber.Map{
		"company": fiber.Map{
			"id":             company.ID,
			"name":           company.Name,
			"contact_email":  company.ContactEmail,
			"logo_url":       company.LogoURL,
			"stripe_enabled": company.HasStripe(),
			"paypal_enabled": company.HasPayPal(),
			"square_enabled": company.HasSquare(),
		},
	})
}

// HandleUploadCompanyLogo accepts a multipart image, normalizes it and
// stores it in the object store.
func HandleUploadCompanyLogo(c *fiber.Ctx) error {
	if logoStore == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "logo_storage_disabled", "Logo storage is not configured")
	}

	company, ok := currentCompany(c)
	if !ok {
		return nil
	}

	fileHeader, err := c.FormFile("logo")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "missing_file", "Multipart field 'logo' is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "unreadable_file", "Uploaded file could not be read")
	}
	defer file.Close()

	processed, err := logo.Process(file)
	if err != nil {
		if errors.Is(err, logo.ErrUnsupportedFormat) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "unsupported_format", "Logo must be a PNG, JPEG or GIF image")
		}
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_logo", err.Error())
	}

	objectKey := logoStoreConfig.LogoObjectKey(company.ID, processed.FileName)
	publicURL, err := logoStore.PutObject(c.Context(), objectKey, processed.ContentType, processed.Data)
	if err != nil {
		log.Printf("logo upload for company %d: %v", company.ID, err)
		return jsonError(c, fiber.StatusBadGateway, "storage_error", "Logo could not be stored")
	}

	company.LogoURL = publicURL
	repo := repository.GetGlobalFactory().GetCompanyRepository()
	if err := repo.Update(company); err != nil {
		log.Printf("logo upload for company %d: %v", company.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Logo URL could not be saved")
	}

	return jsonSuccess(c, fiber.Map{
		"logo_url": publicURL,
		"width":    processed.Width,
		"height":   processed.Height,
	})
}

// HandleCompanyStatistics returns the cached dashboard counters.
func HandleCompanyStatistics(c *fiber.Ctx) error {
	companyID := companycontext.GetCompanyID(c)
	if companyID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing company context")
	}

	summary, err := statsService.Summary(companyID)
	if err != nil {
		log.Printf("statistics for company %d: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Statistics could not be computed")
	}
	return jsonSuccess(c, fiber.Map{"statistics": summary})
}

// currentCompany loads the company behind the authenticated API key. When it
// returns false the error response has already been written. A missing row
// means the key was revoked between middleware and handler.
func currentCompany(c *fiber.Ctx) (*models.Company, bool) {
	companyID := companycontext.GetCompanyID(c)
	if companyID == 0 {
		_ = jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing company context")
		return nil, false
	}

	repo := repository.GetGlobalFactory().GetCompanyRepository()
	company, err := repo.GetByID(companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Company no longer exists")
		} else {
			log.Printf("company lookup %d: %v", companyID, err)
			_ = jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Company could not be loaded")
		}
		return nil, false
	}
	return company, true
}
