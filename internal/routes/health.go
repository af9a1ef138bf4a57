package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/playvault/wallet_ledger/internal/infra"
)

// RegisterHealthRoutes adds the liveness/readiness endpoint.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		dbStatus := infra.CheckPostgres(ctx, d.DB)
		redisStatus := infra.CheckRedis(ctx, d.Cache)

		status := http.StatusOK
		overall := "ok"
		if !infra.Healthy(dbStatus, redisStatus) {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    overall,
			"checks":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
