package companycontext

import "github.com/gofiber/fiber/v2"

// Locals key under which the API key middleware stores the company context.
const Key = "COMPANY_CONTEXT"

// CompanyContext represents the authenticated tenant for a request
type CompanyContext struct {
	CompanyID uint   `json:"company_id"`
	Name      string `json:"name"`
	IsMaster  bool   `json:"is_master"`
}

// GetCompanyContext retrieves the company context from fiber context.
// Returns an empty context when no middleware has authenticated the request.
func GetCompanyContext(c *fiber.Ctx) CompanyContext {
	if ctx := c.Locals(Key); ctx != nil {
		return ctx.(CompanyContext)
	}
	return CompanyContext{}
}

// GetCompanyID returns the authenticated company's ID, or 0
func GetCompanyID(c *fiber.Ctx) uint {
	return GetCompanyContext(c).CompanyID
}

// IsMaster reports whether the request authenticated with the master
// registration key rather than a per-company key.
func IsMaster(c *fiber.Ctx) bool {
	return GetCompanyContext(c).IsMaster
}
