package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/middleware"
	"github.com/example/upilink/internal/services"
	"github.com/example/upilink/internal/validation"
)

// PhonePeHandler manages the gateway-facing payment endpoints.
type PhonePeHandler struct {
	engine    *services.Engine
	validator *validation.Validator
}

func NewPhonePeHandler(engine *services.Engine) *PhonePeHandler {
	return &PhonePeHandler{
		engine:    engine,
		validator: validation.New(),
	}
}

// Initiate creates a transaction and sends the collect request.
func (h *PhonePeHandler) Initiate(c *fiber.Ctx) error {
	var req validation.PaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return writeError(c, err)
	}

	txn, res, err := h.engine.InitiatePayment(c.UserContext(), services.CreateParams{
		PayeeAddress: req.UpiID,
		Amount:       req.Amount,
		Description:  req.Description,
	})
	if err != nil {
		var gerr *services.GatewayError
		if txn != nil && errors.As(err, &gerr) {
			return c.Status(gatewayStatus(gerr.Kind)).JSON(fiber.Map{
				"success":       false,
				"message":       gerr.Message,
				"error":         gerr.Kind.String(),
				"code":          gerr.Code,
				"transactionId": txn.ID,
			})
		}
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Payment request sent to your UPI app",
		"transactionId": txn.ID,
		"data": fiber.Map{
			"transaction": txn,
			"phonepeData": res.Gateway,
		},
	})
}

// Status polls the gateway for the latest state of a transaction.
func (h *PhonePeHandler) Status(c *fiber.Ctx) error {
	res, err := h.engine.PollGatewayStatus(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return writeError(c, err)
	}

	body := fiber.Map{
		"success":     true,
		"transaction": res.Transaction,
		"source":      res.Source,
		"message":     "Status retrieved from local record",
	}
	if res.Source == services.SourceGateway {
		body["message"] = "Status retrieved from PhonePe"
		body["phonepeData"] = res.Gateway
	}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	return c.JSON(body)
}

// Callback applies a server-to-server payment update.
func (h *PhonePeHandler) Callback(c *fiber.Ctx) error {
	t, err := h.engine.ApplyWebhook(c.UserContext(), c.Body(), c.Get(middleware.VerifyHeader))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Callback processed",
		"transactionId": t.Transaction.ID,
		"status":        t.Transaction.Status,
		"applied":       t.Applied,
	})
}

// CallbackHealth lets operators check the callback URL is reachable.
func (h *PhonePeHandler) CallbackHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "PhonePe callback endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
