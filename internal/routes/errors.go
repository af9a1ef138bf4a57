package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/playvault/wallet_ledger/internal/ledger"
	"github.com/playvault/wallet_ledger/internal/middleware"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindInvalidRequest, ledger.KindInvalidAmount, ledger.KindInvalidIdempotencyKey:
		return http.StatusBadRequest
	case ledger.KindWalletNotFound:
		return http.StatusNotFound
	case ledger.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case ledger.KindIdempotencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors as JSON. Ledger errors carry their kind; fiber
// errors keep their status; anything else is an internal error whose details
// are logged, not returned.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			le *ledger.Error
			fe *fiber.Error
		)
		switch {
		case errors.As(err, &le):
			return c.Status(StatusFor(le.Kind)).JSON(ErrorResponse{Error: le.Message, Code: le.Kind.Code()})
		case errors.As(err, &fe):
			code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: code})
		default:
			logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.RequestIDFrom(c)),
				slog.Any("error", err),
			)
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal server error",
				Code:  ledger.KindInternal.Code(),
			})
		}
	}
}
