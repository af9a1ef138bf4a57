package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playvault/wallet_ledger/internal/wallet"
)

// WalletGuards are the per-route middlewares of the mutating endpoints, in the
// order they run. Rate limiting and operator checks run before the key is
// claimed so their rejections are never stored.
type WalletGuards struct {
	RateLimit   fiber.Handler
	Operator    fiber.Handler
	Idempotency fiber.Handler
}

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, g WalletGuards) {
	r.Get("/balance/:userId", h.Balance)
	r.Get("/history/:userId", h.History)

	r.Post("/topup", g.RateLimit, g.Idempotency, h.TopUp)
	r.Post("/bonus", g.RateLimit, g.Operator, g.Idempotency, h.Bonus)
	r.Post("/spend", g.RateLimit, g.Idempotency, h.Spend)
}
