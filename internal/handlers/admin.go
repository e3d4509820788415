package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/config"
	"github.com/example/upilink/internal/middleware"
	"github.com/example/upilink/internal/models"
	"github.com/example/upilink/internal/repository"
	"github.com/example/upilink/internal/services"
	"github.com/example/upilink/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	engine *services.Engine
	cfg    *config.Config
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(engine *services.Engine, cfg *config.Config) *AdminHandler {
	return &AdminHandler{engine: engine, cfg: cfg}
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

// Login exchanges the admin password for a JWT.
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req adminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "password is required")
	}

	if !utils.CheckPassword(h.cfg.AdminPasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, middleware.RoleAdmin, middleware.RoleAdmin, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"token":     token,
		"expiresAt": time.Now().Add(h.cfg.TokenExpires).UTC().Format(time.RFC3339),
	})
}

// ListTransactions returns stored transactions, newest first, with optional
// payee and status filters. It must be mounted behind AuthMiddleware.
func (h *AdminHandler) ListTransactions(c *fiber.Ctx) error {
	subject, ok := middleware.GetCurrentSubject(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	pg := utils.ParsePagination(c)
	filter := repository.ListFilter{
		PayeeAddress: c.Query("payee"),
		Offset:       pg.Offset,
		Limit:        pg.Limit,
	}

	if status := c.Query("status"); status != "" {
		filter.Status = models.Status(status)
		if !filter.Status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown status filter")
		}
	}

	txns, err := h.engine.ListTransactions(c.UserContext(), filter)
	if err != nil {
		return err
	}
	log.Printf("[Admin] %s listed %d transaction(s) (payee=%q status=%q page=%d)",
		subject, len(txns), filter.PayeeAddress, filter.Status, pg.Page)

	return c.JSON(fiber.Map{
		"success":     true,
		"data":        txns,
		"page":        pg.Page,
		"limit":       pg.Limit,
		"count":       len(txns),
		"requestedBy": subject,
	})
}
