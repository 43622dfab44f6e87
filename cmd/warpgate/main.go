package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/warpgate-live/warpgate-server/internal/api"
	"github.com/warpgate-live/warpgate-server/internal/auth"
	"github.com/warpgate-live/warpgate-server/internal/config"
	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/httputil"
	"github.com/warpgate-live/warpgate-server/internal/postgres"
	"github.com/warpgate-live/warpgate-server/internal/presence"
	"github.com/warpgate-live/warpgate-server/internal/ratelimit"
	"github.com/warpgate-live/warpgate-server/internal/valkey"
	"github.com/warpgate-live/warpgate-server/internal/warp"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}
	if cfg.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Str("env", cfg.ServerEnv).Str("version", cfg.CommitHash).Msg("Starting Warpgate Server")

	if cfg.CORSAllowOrigins == "*" && !cfg.IsDevelopment() {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx := context.Background()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Valkey
	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Valkey connected")

	store := presence.NewPGStore(db, log.Logger)

	var warpStore *warp.Store
	if cfg.WarpStatusEnabled {
		warpStore = warp.NewStore(rdb)
	}

	hub := gateway.NewHub(cfg, store, warpStore, log.Logger)

	// Background loops
	loopCtx, loopCancel := context.WithCancel(ctx)
	defer loopCancel()
	go gateway.NewHeartbeat(cfg, hub, log.Logger).Run(loopCtx)
	if cfg.VerifyEnabled() {
		go gateway.NewVerifier(cfg, hub, store, log.Logger).Run(loopCtx)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Warpgate",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{Success: false, Message: message})
		},
	})

	// Global middleware
	app.Use(httputil.CORS(cfg.CORSAllowOrigins))
	app.Use(httputil.RequestLogger(log.Logger))

	registerRoutes(app, cfg, hub, store)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		loopCancel()
		hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	// Listen
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Str("path", cfg.WSPath).Msg("Server listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func registerRoutes(app *fiber.App, cfg *config.Config, hub *gateway.Hub, store *presence.PGStore) {
	health := api.NewHealthHandler(cfg, hub, store, store, log.Logger)
	app.Get("/v1/health", health.Health)

	gatewayHandler := api.NewGatewayHandler(hub)
	app.Get(cfg.WSPath, gatewayHandler.Upgrade)

	// Admin surface: per-IP rate limiting in front of the key check.
	limiter := ratelimit.New(time.Duration(cfg.RateLimitWindowMS)*time.Millisecond, cfg.RateLimitMax)
	admin := app.Group("/v1",
		ratelimit.Middleware(limiter, api.ResolveClientIP),
		auth.RequireAdminKey(cfg.AdminKey),
	)

	users := api.NewUsersHandler(hub, store, log.Logger)
	admin.Get("/connected-users", users.List)

	broadcast := api.NewBroadcastHandler(hub, log.Logger)
	admin.Post("/broadcast", broadcast.Broadcast)
}
