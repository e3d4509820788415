package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/upilink/internal/config"
	"github.com/example/upilink/internal/database"
	"github.com/example/upilink/internal/handlers"
	"github.com/example/upilink/internal/phonepe"
	"github.com/example/upilink/internal/repository"
	"github.com/example/upilink/internal/routes"
	"github.com/example/upilink/internal/services"
)

func initLogger(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	out := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
	log.SetOutput(out)
	return out
}

func openStore(cfg *config.Config) (repository.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewPostgresStore(db), closeFn, nil
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return repository.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		log.Println("Using in-memory transaction store; records are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

func main() {
	cfg := config.Load()
	logOutput := initLogger(cfg.LogFile)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	baseURL := phonepe.SandboxBaseURL
	if cfg.PhonePeProduction {
		baseURL = phonepe.ProductionBaseURL
	}
	client := phonepe.NewClient(phonepe.Config{
		MerchantID:  cfg.PhonePeMerchantID,
		SaltKey:     cfg.PhonePeSaltKey,
		SaltIndex:   cfg.PhonePeSaltIndex,
		BaseURL:     baseURL,
		CallbackURL: cfg.CallbackURL(),
		RedirectURL: cfg.RedirectURL(),
		Timeout:     cfg.PhonePeTimeout,
	})

	engine := services.NewEngine(store, client, services.EngineOptions{
		Signer:       client.Signer(),
		ExpireAfter:  cfg.TransactionTTL,
		MerchantName: cfg.MerchantName,
		Notifier:     services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat),
	})

	sweeper, err := services.NewSweeper(engine, cfg.ExpirySweepEvery, nil)
	if err != nil {
		log.Fatalf("failed to start expiry sweeper: %v", err)
	}
	sweeper.Start()

	app := fiber.New(fiber.Config{
		AppName:      "UPI Link",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: logOutput}))

	routes.Register(app, engine, cfg)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down")
		if err := sweeper.Stop(); err != nil {
			log.Printf("sweeper shutdown: %v", err)
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("fiber shutdown: %v", err)
		}
	}()

	log.Printf("Starting server on :%s (store=%s, phonepe=%s)", cfg.AppPort, cfg.StoreDriver, baseURL)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
