package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/juanrobin09-stack/Astraloves-sub001/pkg/utils"
)

// AuthRequired validates the bearer token issued by the account service and
// stores the caller's user id in Locals for the handlers.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := strings.CutPrefix(c.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}
