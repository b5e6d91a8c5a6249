package main

import (
	"fmt"
	"log"

	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/borikenlabs/athmovil/internal/pkg/athm"
	"github.com/borikenlabs/athmovil/internal/pkg/database"
	"github.com/borikenlabs/athmovil/internal/pkg/env"
	"github.com/borikenlabs/athmovil/internal/pkg/router"
	"github.com/borikenlabs/athmovil/internal/pkg/worker"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	store := repository.NewStore(database.GetDB())

	// Redis is optional; without it notifications stay in-process.
	var rdb *redis.Client
	if addr := env.GetEnv("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: env.GetEnv("REDIS_PASSWORD", ""),
		})
	}
	dispatcher := athm.NewDispatcher(rdb)

	gateway := athm.NewGatewayClient(athm.GatewayConfigFromEnv())
	processor := athm.NewProcessor(store, dispatcher)
	reconciler := athm.NewReconciler(store, gateway)
	refunder := athm.NewRefundOrchestrator(store, gateway, dispatcher)

	app := fiber.New()
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app, store, processor, reconciler, refunder)

	worker.NewManager(store, reconciler).Start()

	return app
}
