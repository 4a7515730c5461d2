package middleware

import (
	"crypto/subtle"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/companycontext"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/env"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
)

// APIKeyAuthMiddleware authenticates server-to-server calls carrying a
// company API key. Keys are high-entropy and resolved through the indexed
// column, so an equality lookup suffices for per-company keys.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return unauthorized(c, "Missing API key")
		}
		if !token.IsWellFormedAPIKey(apiKey) {
			return unauthorized(c, "Invalid API key")
		}

		repo := repository.GetGlobalFactory().GetCompanyRepository()
		company, err := repo.GetByAPIKey(apiKey)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unauthorized(c, "Invalid API key")
			}
			log.Printf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success":    false,
				"message":    "API key verification failed",
				"error_code": "datastore_error",
			})
		}

		c.Locals(companycontext.Key, companycontext.CompanyContext{
			CompanyID: company.ID,
			Name:      company.Name,
		})
		return c.Next()
	}
}

// MasterKeyAuthMiddleware authenticates the registration endpoint with the
// shared master key. The comparison is constant-time; the master key is the
// one secret an attacker could profitably probe byte by byte.
func MasterKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		masterKey := env.GetEnv("MASTER_API_KEY", "")
		if masterKey == "" {
			log.Print("master key middleware: MASTER_API_KEY not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success":    false,
				"message":    "Registration is not configured",
				"error_code": "config_error",
			})
		}

		apiKey := extractAPIKeyFromHeader(c)
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(masterKey)) != 1 {
			return unauthorized(c, "Invalid master key")
		}

		c.Locals(companycontext.Key, companycontext.CompanyContext{IsMaster: true})
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success":    false,
		"message":    message,
		"error_code": "unauthorized",
	})
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
