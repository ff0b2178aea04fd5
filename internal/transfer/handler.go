package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ledgerbank/ledgerbank/internal/account"
	"github.com/ledgerbank/ledgerbank/internal/ledger"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Transfer requests processed, labeled by kind and outcome",
	}, []string{"kind", "outcome"})

	transferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_transfer_duration_seconds",
		Help:    "Latency distribution of transfer requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"kind"})
)

// Handler exposes the transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromAccount    string `json:"fromAccount"`
	ToAccount      string `json:"toAccount"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type issueRequest struct {
	ToAccount      string `json:"toAccount"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type transactionResponse struct {
	ID             string    `json:"id"`
	FromAccount    string    `json:"fromAccount"`
	ToAccount      string    `json:"toAccount"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toResponse(tx ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:             tx.ID,
		FromAccount:    tx.FromAccountID,
		ToAccount:      tx.ToAccountID,
		Amount:         tx.Amount,
		IdempotencyKey: tx.IdempotencyKey,
		Status:         string(tx.Status),
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
}

// Create processes a peer-to-peer transfer.
func (h *Handler) Create(c *fiber.Ctx) error {
	timer := prometheus.NewTimer(transferDuration.WithLabelValues("p2p"))
	defer timer.ObserveDuration()

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		transfersTotal.WithLabelValues("p2p", "rejected").Inc()
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Transfer(c.UserContext(), Input{
		FromAccountID:   req.FromAccount,
		ToAccountID:     req.ToAccount,
		Amount:          req.Amount,
		IdempotencyKey:  req.IdempotencyKey,
		RequestorUserID: uid,
	})
	return respond(c, "p2p", res, err)
}

// CreateInitialFunds processes a system-originated credit issuance.
func (h *Handler) CreateInitialFunds(c *fiber.Ctx) error {
	timer := prometheus.NewTimer(transferDuration.WithLabelValues("issuance"))
	defer timer.ObserveDuration()

	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		transfersTotal.WithLabelValues("issuance", "rejected").Inc()
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.IssueInitialFunds(c.UserContext(), IssueInput{
		IssuerUserID:   uid,
		ToAccountID:    req.ToAccount,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	return respond(c, "issuance", res, err)
}

func respond(c *fiber.Ctx, kind string, res Result, err error) error {
	if err != nil {
		var insufficient *InsufficientFundsError
		switch {
		case errors.As(err, &insufficient):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusBadRequest, insufficient.Error())
		case errors.Is(err, ErrValidation):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, account.ErrNotFound), errors.Is(err, ledger.ErrAccountUnknown):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusBadRequest, "invalid fromAccount or toAccount")
		case errors.Is(err, ErrAccountNotActive):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotOwner):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrSystemAccountNotFound):
			transfersTotal.WithLabelValues(kind, "rejected").Inc()
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrStillProcessing):
			transfersTotal.WithLabelValues(kind, "pending").Inc()
			return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Transaction is still processing"})
		case errors.Is(err, ErrRetryTransfer):
			transfersTotal.WithLabelValues(kind, "failed").Inc()
			return fiber.NewError(http.StatusInternalServerError, "transaction processing failed, please retry")
		default:
			transfersTotal.WithLabelValues(kind, "failed").Inc()
			return fiber.NewError(http.StatusInternalServerError, "transaction could not be completed, please retry after sometime")
		}
	}

	if res.Pending {
		transfersTotal.WithLabelValues(kind, "pending").Inc()
		return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Transaction is still processing"})
	}
	if res.Replayed {
		transfersTotal.WithLabelValues(kind, "replayed").Inc()
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message":     "Transaction already processed",
			"transaction": toResponse(res.Transaction),
		})
	}
	transfersTotal.WithLabelValues(kind, "completed").Inc()
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":     "Transaction completed successfully",
		"transaction": toResponse(res.Transaction),
	})
}
