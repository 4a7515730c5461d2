package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP determines the actual client IP address considering proxies.
// The rate limiter keys on this value, so proxy headers are consulted before
// the socket address.
func GetClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare puts the original client IP in its own header
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// 2. X-Forwarded-For can contain a list of IPs - the first one is the
	// original client IP
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	// 3. No proxy headers, use the socket address. Unwrap IPv4-mapped-IPv6
	// (::ffff:192.168.1.1) so the hash is stable across stacks.
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

func jsonSuccess(c *fiber.Ctx, data fiber.Map) error {
	resp := fiber.Map{"success": true}
	for k, v := range data {
		resp[k] = v
	}
	return c.JSON(resp)
}

func jsonError(c *fiber.Ctx, status int, errorCode, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success":    false,
		"message":    message,
		"error_code": errorCode,
	})
}
