package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/utils"
)

const (
	subjectContextKey = "currentSubject"

	RoleAdmin = "admin"
)

// AuthMiddleware validates bearer JWTs and requires the given role.
func AuthMiddleware(secret, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		subject, tokenRole, err := utils.ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if tokenRole != role {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role")
		}

		c.Locals(subjectContextKey, subject)
		return c.Next()
	}
}

// GetCurrentSubject returns the authenticated token subject.
func GetCurrentSubject(c *fiber.Ctx) (string, bool) {
	subject, ok := c.Locals(subjectContextKey).(string)
	return subject, ok && subject != ""
}
