package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/config"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/database"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/delivery"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/presence"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/routes"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(context.Background(), cfg.DBUrl); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	// 3. Connect to Redis (presence + cross-process presence events)
	rdb, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := presence.NewTracker(rdb, cfg.PresenceTimeout)

	hub := delivery.NewHub(cfg.PresenceTimeout)
	go hub.Run(ctx)
	go func() {
		if err := presence.Relay(ctx, rdb, hub); err != nil && ctx.Err() == nil {
			log.Printf("Presence relay stopped: %v", err)
		}
	}()

	// 4. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, database.DB, rdb, hub, tracker)

	// 5. Start Server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
