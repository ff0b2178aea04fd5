package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerbank/ledgerbank/internal/identity"
	"github.com/ledgerbank/ledgerbank/internal/notification"
)

// Handler exposes register/login/logout endpoints.
type Handler struct {
	ids      *identity.Service
	svc      *Service
	notifier notification.Notifier
}

// NewHandler constructs an auth handler.
func NewHandler(ids *identity.Service, svc *Service, notifier notification.Notifier) *Handler {
	return &Handler{ids: ids, svc: svc, notifier: notifier}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type userResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Register creates a user, issues a token and sends a welcome notification.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, Name: req.Name, Password: req.Password})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, _, err := h.svc.IssueToken(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	if h.notifier != nil {
		_ = h.notifier.NotifyRegistration(c.UserContext(), notification.Registration{Email: user.Email, Name: user.Name})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    userResponse{Name: user.Name, Email: user.Email},
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login validates credentials and returns a fresh token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}
	token, _, err := h.svc.IssueToken(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "User login successfully",
		"user":    userResponse{Name: user.Name, Email: user.Email},
		"token":   token,
	})
}

// Logout revokes the presented bearer token.
func (h *Handler) Logout(c *fiber.Ctx) error {
	token := BearerToken(c)
	if token == "" {
		return fiber.NewError(http.StatusBadRequest, "missing bearer token")
	}
	if err := h.svc.Logout(c.UserContext(), token); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "User logged out successfully"})
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}
