package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// LocalUserID is the fiber Locals key holding the authenticated user id.
const LocalUserID = "uid"

type Authenticator interface {
	Authenticate(accessToken string) (string, error)
}

// JWTAuth accepts a Bearer token, or a `token` query parameter for websocket upgrades.
func JWTAuth(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		uid, err := a.Authenticate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(LocalUserID, uid)
		return c.Next()
	}
}

func bearer(h string) string {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserID returns the id stored by JWTAuth, or "".
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUserID).(string)
	return uid
}
