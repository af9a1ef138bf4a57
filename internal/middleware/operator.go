package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// OperatorKeyHeader carries the shared operator key for privileged routes.
const OperatorKeyHeader = "X-Operator-Key"

// OperatorKey guards a route with a bcrypt-hashed shared key. An empty hash
// disables the check.
func OperatorKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hash == "" {
			return c.Next()
		}
		key := c.Get(OperatorKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing operator key")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return fiber.NewError(http.StatusForbidden, "invalid operator key")
		}
		return c.Next()
	}
}

// HashOperatorKey produces the value for OPERATOR_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
