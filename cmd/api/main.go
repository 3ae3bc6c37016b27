package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-pricebook-sync/internal/app"
	"go-pricebook-sync/internal/handler"
	"go-pricebook-sync/internal/middleware"
	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/ws"
	"go-pricebook-sync/pkg/config"
	"go-pricebook-sync/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	out := logger.Setup(logger.Options{File: cfg.Log.File, MaxSizeMB: cfg.Log.MaxSizeMB})
	defer logger.Close()

	// 2. WebSocket hub receives every sync event
	wsHub := ws.NewHub(logger.New("ws"))
	go wsHub.Run()

	// 3. Database, upstream client and engine
	_, components, err := app.Open(cfg, wsHub)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Sync.SchedulerEnabled {
		if err := components.Scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	syncHandler := handler.NewSyncHandler(components.Sync, components.Pricebook, components.Scheduler)

	// 4. Setup Fiber
	fiberApp := fiber.New(fiber.Config{
		AppName: "Pricebook Sync v1.0",
	})

	fiberApp.Use(fiberlogger.New(fiberlogger.Config{Output: out}))
	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "ws_clients": wsHub.ClientCount()})
	})

	// 5. Routes
	api := fiberApp.Group("/api/v1", middleware.RequireAuth())
	syncHandler.Routes(api)

	// WebSocket Route
	fiberApp.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	fiberApp.Get("/ws", middleware.RequireAuth(), middleware.RequirePrivilege(model.PrivSyncView), websocket.New(func(c *websocket.Conn) {
		wsHub.Register <- c
		defer func() { wsHub.Unregister <- c }()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 6. Graceful Shutdown
	go func() {
		if err := fiberApp.Listen(":" + cfg.Port); err != nil {
			log.Panic(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	components.Scheduler.Stop()
	if err := fiberApp.Shutdown(); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
