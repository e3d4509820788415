package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/services"
)

// PaymentHandler serves local transaction reads.
type PaymentHandler struct {
	engine *services.Engine
}

func NewPaymentHandler(engine *services.Engine) *PaymentHandler {
	return &PaymentHandler{engine: engine}
}

// GetStatus returns the stored transaction without contacting the gateway.
func (h *PaymentHandler) GetStatus(c *fiber.Ctx) error {
	txn, err := h.engine.GetTransaction(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "transaction": txn})
}
