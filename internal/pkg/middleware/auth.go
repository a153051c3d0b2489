package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
)

// KeyRole is the Locals key holding the verified caller role.
const KeyRole = "AUTH_ROLE"

// RequireAdminToken authenticates a bearer token and requires the ADMIN role.
// It answers JSON 401/403 instead of redirecting.
func RequireAdminToken(verifier credentials.Verifier) fiber.Handler {
	return RequireRole(verifier, models.ROLE_ADMIN)
}

// RequireRole authenticates a bearer token and requires role.
func RequireRole(verifier credentials.Verifier, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing bearer token",
			})
		}

		got, err := verifier.Verify(token)
		if err != nil {
			log.Warnf("[Auth] Token rejected for %s %s: %v", c.Method(), c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Invalid token",
			})
		}
		if got != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Insufficient role",
			})
		}

		c.Locals(KeyRole, got)
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
