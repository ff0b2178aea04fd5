package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency string `json:"currency"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResponse(acc Account) accountResponse {
	return accountResponse{
		ID:        acc.ID,
		Status:    string(acc.Status),
		Currency:  acc.Currency,
		CreatedAt: acc.CreatedAt,
	}
}

// Create opens an account for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	// Body is optional; currency defaults when absent.
	_ = c.BodyParser(&req)

	uid, _ := c.Locals("user_id").(string)
	acc, err := h.service.Open(c.UserContext(), uid, req.Currency)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return fiber.NewError(http.StatusConflict, "user already has an account")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Account created successfully",
		"account": toResponse(acc),
	})
}

// List returns the accounts owned by the authenticated user.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	accounts, err := h.service.ListByOwner(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, toResponse(acc))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

// Balance returns the derived balance of one of the caller's accounts.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	accountID := c.Params("accountID")

	balance, err := h.service.Balance(c.UserContext(), uid, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"accountId": accountID,
		"balance":   balance,
	})
}
