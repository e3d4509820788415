package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/upilink/internal/config"
	"github.com/example/upilink/internal/handlers"
	"github.com/example/upilink/internal/middleware"
	"github.com/example/upilink/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, engine *services.Engine, cfg *config.Config) {
	phonepeHandler := handlers.NewPhonePeHandler(engine)
	paymentHandler := handlers.NewPaymentHandler(engine)
	adminHandler := handlers.NewAdminHandler(engine, cfg)

	api := app.Group("/api")

	// PhonePe routes
	phonepe := api.Group("/phonepe")
	phonepe.Post("/initiate", phonepeHandler.Initiate)
	phonepe.Get("/status/:transactionId", phonepeHandler.Status)
	phonepe.Post("/callback", middleware.PhonePeSignatureMiddleware(), phonepeHandler.Callback)
	phonepe.Get("/callback", phonepeHandler.CallbackHealth)

	api.Get("/payment/status/:transactionId", paymentHandler.GetStatus)

	// Admin routes
	admin := api.Group("/admin")
	admin.Post("/login", adminHandler.Login)
	admin.Get("/transactions", middleware.AuthMiddleware(cfg.JWTSecret, middleware.RoleAdmin), adminHandler.ListTransactions)
}
