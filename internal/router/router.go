package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/equalizer"
	"github.com/lavapool/lavapool/internal/handlers"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/middleware"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/player"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, nodes *node.Registry, players *player.Registry, presets equalizer.Store, cfg config.AdminConfig) *handlers.Handler {
	// Create handler instance
	h := handlers.New(logger, nodes, players, presets)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	// API key authentication middleware
	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)

	// API v1 routes (protected by API key)
	v1 := app.Group("/v1", authMiddleware)

	// Node Routes
	v1.Get("/nodes", h.ListNodes)
	v1.Get("/nodes/:name", h.GetNode)
	v1.Get("/nodes/:name/routeplanner", h.GetRoutePlanner)
	v1.Post("/nodes/:name/routeplanner/free", h.FreeRoutePlannerAddress)
	v1.Post("/nodes/:name/routeplanner/free/all", h.FreeRoutePlannerAll)

	// Player Routes
	v1.Get("/players", h.ListPlayers)
	v1.Get("/players/:guild_id", h.GetPlayer)
	v1.Delete("/players/:guild_id", h.DestroyPlayer)

	// Equalizer Preset Routes
	v1.Get("/equalizers", h.ListPresets)
	v1.Get("/equalizers/:name", h.GetPreset)
	v1.Put("/equalizers/:name", h.PutPreset)
	v1.Delete("/equalizers/:name", h.DeletePreset)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, nodes *node.Registry, players *player.Registry, presets equalizer.Store, cfg config.AdminConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Lavapool Admin",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, nodes, players, presets, cfg)

	return app
}
