package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/playvault/wallet_ledger/internal/idempotency"
	"github.com/playvault/wallet_ledger/internal/metrics"
)

const (
	// IdempotencyKeyHeader carries the caller's idempotency key.
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// fallbackIdempotencyKeyHeader is the IETF draft header name.
	fallbackIdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set to "true" on responses served from a stored record.
	ReplayedHeader = "Idempotent-Replayed"

	finalizeTimeout = 5 * time.Second
)

// Idempotency wraps unsafe methods in the claim/finalize protocol. Responses
// below 500 are stored and replayed for later requests with the same key.
// Server errors are not stored, so the key stays pending until its lease
// expires.
func Idempotency(coord *idempotency.Coordinator, m *metrics.Metrics, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		raw := c.Get(IdempotencyKeyHeader)
		if raw == "" {
			raw = c.Get(fallbackIdempotencyKeyHeader)
		}
		key, err := idempotency.NormalizeKey(raw)
		if err != nil {
			m.ObserveIdempotency("invalid")
			return err
		}

		outcome, err := coord.Claim(c.UserContext(), key)
		if err != nil {
			m.ObserveIdempotency("error")
			logger.ErrorContext(c.UserContext(), "idempotency claim failed", slog.String("key", key), slog.Any("error", err))
			return err
		}
		m.ObserveIdempotency(outcome.State.String())

		switch outcome.State {
		case idempotency.Conflict:
			return idempotency.ErrConflict
		case idempotency.Duplicate:
			c.Set(ReplayedHeader, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Status(outcome.Status).Send(outcome.Body)
		}

		if err := c.Next(); err != nil {
			// Render business errors now so the stored body matches what the
			// client receives.
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			logger.WarnContext(c.UserContext(), "leaving idempotency key pending after server error",
				slog.String("key", key), slog.Int("status", status))
			return nil
		}

		body := append([]byte(nil), c.Response().Body()...)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), finalizeTimeout)
		defer cancel()
		switch err := coord.Finalize(ctx, key, outcome.Token, status, body); {
		case errors.Is(err, idempotency.ErrClaimLost):
			logger.WarnContext(c.UserContext(), "idempotency claim superseded before finalize",
				slog.String("key", key), slog.Int("status", status))
		case err != nil:
			logger.ErrorContext(c.UserContext(), "failed to persist idempotent response",
				slog.String("key", key), slog.Int("status", status), slog.Any("error", err))
		}
		return nil
	}
}
