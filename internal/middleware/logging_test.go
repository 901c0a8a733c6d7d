package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLogger_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.Logger
	observability.Logger = observability.NewLogger(&buf, "development")
	t.Cleanup(func() { observability.Logger = prev })

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(ContextMiddleware())
	app.Use(StructuredLogger())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(fiber.HeaderXRequestID, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := buf.String()
	assert.Contains(t, out, "request processed")
	assert.Contains(t, out, "request_id=abc-123")
	assert.Contains(t, out, "path=/ping")
}

func TestStructuredLogger_LogsRenderedErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.Logger
	observability.Logger = observability.NewLogger(&buf, "development")
	t.Cleanup(func() { observability.Logger = prev })

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusNotFound).SendString(err.Error())
		},
	})
	var outerStatus int
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		outerStatus = c.Response().StatusCode()
		return err
	})
	app.Use(StructuredLogger())
	app.Get("/missing", func(c *fiber.Ctx) error { return errors.New("no such thing") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, outerStatus)

	out := buf.String()
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "request processed")
	assert.Contains(t, out, `error="no such thing"`)
	assert.NotContains(t, out, "request failed")
}

func TestPerformanceLogger_WarnsOnSlowRequests(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.Logger
	observability.Logger = observability.NewLogger(&buf, "development")
	t.Cleanup(func() { observability.Logger = prev })

	app := fiber.New()
	app.Use(PerformanceLogger(10 * time.Millisecond))
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(20 * time.Millisecond)
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/fast", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/fast", nil))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "slow request")

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/slow", nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "slow request")
}
