package controllers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientIPFor(t *testing.T, headers map[string]string) string {
	t.Helper()

	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = GetClientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	return got
}

func TestGetClientIPPrefersProxyHeaders(t *testing.T) {
	assert.Equal(t, "203.0.113.7", clientIPFor(t, map[string]string{
		"CF-Connecting-IP": "203.0.113.7",
		"X-Forwarded-For":  "198.51.100.1, 10.0.0.1",
	}))

	assert.Equal(t, "198.51.100.1", clientIPFor(t, map[string]string{
		"X-Forwarded-For": "198.51.100.1, 10.0.0.1",
	}))
}

func TestGetClientIPFallsBackToSocket(t *testing.T) {
	ip := clientIPFor(t, nil)
	assert.NotEmpty(t, ip)
	assert.NotContains(t, ip, "::ffff:")
}

func TestJSONEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error {
		return jsonSuccess(c, fiber.Map{"value": 7})
	})
	app.Get("/bad", func(c *fiber.Ctx) error {
		return jsonError(c, fiber.StatusConflict, "conflict", "already there")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var ok map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &ok))
	assert.Equal(t, true, ok["success"])
	assert.Equal(t, float64(7), ok["value"])

	resp, err = app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	var bad map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &bad))
	assert.Equal(t, false, bad["success"])
	assert.Equal(t, "conflict", bad["error_code"])
	assert.Equal(t, "already there", bad["message"])
}
