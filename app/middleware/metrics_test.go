package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordsStatusLabel(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/teapot", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusTeapot)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/teapot", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/teapot", "418"))
	assert.Equal(t, float64(1), count)
}
