package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerbank/ledgerbank/internal/middleware"
	"github.com/ledgerbank/ledgerbank/internal/transfer"
)

// RegisterTransferRoutes wires transfer endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, jwtmw fiber.Handler) {
	group := r.Group("/transfers", jwtmw)
	group.Post("/", h.Create)
	group.Post("/system/initial-funds", middleware.SystemOnly(), h.CreateInitialFunds)
}
