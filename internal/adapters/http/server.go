package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse-preview/internal/metrics"
)

// NewApp wires the control API routes.
func NewApp(previews *PreviewHandler, proxy *ProxyHandler, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(metricsMiddleware(m))
	if proxy != nil {
		app.Use(proxy.ProxyRequest)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Post("/builds", previews.BuildPreview)

	// Routes for Preview operations
	p := v1.Group("/previews")
	p.Get("/", previews.ListPreviews)
	p.Post("/", previews.StartPreview)
	p.Delete("/:id", previews.StopPreview)
	p.Get("/:id/logs", previews.GetPreviewLogs)

	return app
}

// metricsMiddleware counts requests by route and status class.
func metricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		if route == "" {
			route = "unknown"
		}
		m.ObserveRequest(route, fmt.Sprintf("%dxx", status/100))
		return err
	}
}
