package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// VerifyHeader carries the gateway checksum on callbacks.
const VerifyHeader = "X-VERIFY"

// PhonePeSignatureMiddleware rejects callbacks that carry no X-VERIFY header.
// The checksum itself is verified by the engine against the raw body.
func PhonePeSignatureMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(c.Get(VerifyHeader)) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing X-VERIFY header")
		}
		return c.Next()
	}
}
