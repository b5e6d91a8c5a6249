package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/borikenlabs/athmovil/internal/pkg/athm"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	store      repository.Store
	processor  *athm.Processor
	reconciler *athm.Reconciler
	refunder   *athm.RefundOrchestrator
	validate   = validator.New()
)

// InitializeControllers wires the controllers to the reconciliation core.
func InitializeControllers(s repository.Store, p *athm.Processor, r *athm.Reconciler, o *athm.RefundOrchestrator) {
	store = s
	processor = p
	reconciler = r
	refunder = o
}

// RefundRequest is the operator-facing refund payload. An empty amount means
// the full refundable amount.
type RefundRequest struct {
	Amount  string `json:"amount" validate:"omitempty,numeric"`
	Message string `json:"message" validate:"max=255"`
}

func HandleListPayments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	payments, err := store.ListPayments((page-1)*limit, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list payments"})
	}
	total, err := store.CountPayments()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not count payments"})
	}

	return c.JSON(fiber.Map{
		"payments": payments,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

func HandleGetPayment(c *fiber.Ctx) error {
	payment, err := store.GetPaymentByEcommerceID(c.Params("ecommerceID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load payment"})
	}
	return c.JSON(payment)
}

// HandleSyncPayment runs the status reconciler for one payment on demand.
func HandleSyncPayment(c *fiber.Ctx) error {
	payment, err := store.GetPaymentByEcommerceID(c.Params("ecommerceID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load payment"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()
	status := reconciler.SyncStatus(ctx, payment)
	return c.JSON(fiber.Map{"ecommerce_id": payment.EcommerceID, "status": status})
}

func HandleRefundPayment(c *fiber.Ctx) error {
	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid refund amount"})
		}
		amount = &parsed
	}

	payment, err := store.GetPaymentByEcommerceID(c.Params("ecommerceID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load payment"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()
	refund, err := refunder.Refund(ctx, payment, amount, req.Message)
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(refund)
	case errors.Is(err, athm.ErrPaymentNotRefundable),
		errors.Is(err, athm.ErrMissingReferenceNumber),
		errors.Is(err, athm.ErrInvalidRefundAmount),
		errors.Is(err, athm.ErrRefundExceedsAvailable):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "refund failed: " + err.Error()})
	}
}

// HandleReprocessEvent clears a failed event's error state and runs it again.
func HandleReprocessEvent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event id"})
	}

	if err := processor.Reprocess(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	event, err := store.GetWebhookEventByID(uint(id))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not reload event"})
	}
	return c.JSON(event)
}
