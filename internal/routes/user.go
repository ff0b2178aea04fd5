package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerbank/ledgerbank/internal/account"
)

// RegisterUserRoutes wires account endpoints for the authenticated user.
func RegisterUserRoutes(r fiber.Router, h *account.Handler, jwtmw fiber.Handler) {
	group := r.Group("/user", jwtmw)
	group.Post("/create-user", h.Create)
	group.Get("/", h.List)
	group.Get("/balance/:accountID", h.Balance)
}
