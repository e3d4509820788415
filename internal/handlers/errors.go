package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/services"
	"github.com/example/upilink/internal/validation"
)

// ErrorHandler renders every error as the JSON envelope used by the API.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
	}
	log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Internal server error",
	})
}

// writeError maps engine errors onto HTTP responses.
func writeError(c *fiber.Ctx, err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request data",
			"errors":  verrs,
		})
	}

	var gerr *services.GatewayError
	if errors.As(err, &gerr) {
		return c.Status(gatewayStatus(gerr.Kind)).JSON(fiber.Map{
			"success": false,
			"message": gerr.Message,
			"error":   gerr.Kind.String(),
			"code":    gerr.Code,
		})
	}

	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Transaction not found")
	case errors.Is(err, services.ErrInvalidSignature):
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, services.ErrMalformedCallback):
		return fiber.NewError(fiber.StatusBadRequest, "Malformed callback payload")
	case errors.Is(err, services.ErrTransactionNotSubmitted):
		return fiber.NewError(fiber.StatusConflict, "Transaction has not been submitted yet")
	case errors.Is(err, services.ErrDuplicateTransaction):
		return fiber.NewError(fiber.StatusConflict, "Transaction id collision, please retry")
	}
	return err
}

func gatewayStatus(kind services.GatewayErrorKind) int {
	switch kind {
	case services.GatewayMisconfigured:
		return fiber.StatusServiceUnavailable
	case services.GatewayRejected:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
}
