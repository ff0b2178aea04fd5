package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerbank/ledgerbank/internal/auth"
)

// JWTAuth returns a middleware that validates access tokens against the auth
// service, including the revocation blacklist.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		principal, err := svc.Verify(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", principal.UserID)
		c.Locals("is_system", principal.System)
		return c.Next()
	}
}

// SystemOnly restricts a route to principals flagged as system users.
func SystemOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isSystem, _ := c.Locals("is_system").(bool); !isSystem {
			return fiber.NewError(http.StatusForbidden, "system account required")
		}
		return c.Next()
	}
}
