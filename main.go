package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/huhumeme2002/Webtokenv2/backend/handlers"
	"github.com/huhumeme2002/Webtokenv2/backend/middleware"
	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	webservices "github.com/huhumeme2002/Webtokenv2/backend/services"
	"github.com/huhumeme2002/Webtokenv2/webtoken"
	"github.com/huhumeme2002/Webtokenv2/webtoken/allocation"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
	"github.com/huhumeme2002/Webtokenv2/webtoken/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler("WebToken")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting token allocation service",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := webtoken.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("Connecting to database...")
	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Database connected successfully")

	if err := database.CreateSchema(ctx, db); err != nil {
		slog.Error("Failed to create schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repos := webmodels.NewRepositories(
		repositories.NewKeyRepository(db.BunDB()),
		repositories.NewTokenRepository(db.BunDB()),
		repositories.NewNoticeRepository(db.BunDB()),
	)

	engine := allocation.NewEngine(
		db.BunDB(),
		repos.Key,
		repos.Token,
		cfg.Pool.Cooldown(),
		cfg.Pool.Retries(),
	)

	sessionService := webservices.NewSessionService(cfg, cfg.Web.Environment)
	noticeService, err := webservices.NewNoticeService(repos.Notice)
	if err != nil {
		slog.Error("Failed to create notice service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		AppName:      "WebToken API",
		ServerHeader: "WebToken",
		ErrorHandler: middleware.CustomErrorHandler,
		// X-Forwarded-For is only honored when the peer is a listed proxy;
		// otherwise c.IP() is the connection address.
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Web.TrustedProxies,
		ProxyHeader:             fiber.HeaderXForwardedFor,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Web.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Cookie",
		AllowCredentials: true,
	}))
	app.Use(middleware.LoggingMiddleware())

	webApp := &handlers.WebApp{
		Config:         cfg,
		DB:             db,
		Repos:          repos,
		Engine:         engine,
		SessionService: sessionService,
		NoticeService:  noticeService,
		Version:        version,
		Commit:         commit,
	}

	setupRoutes(app, webApp, sessionService)

	address := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	slog.Info("Starting server", slog.String("address", address))

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := app.Listen(address); err != nil {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
		}
	}()

	<-c
	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", slog.String("error", err.Error()))
	}

	db.Close()

	slog.Info("Server shutdown complete")
}

// setupRoutes configures all application routes
func setupRoutes(app *fiber.App, webApp *handlers.WebApp, sessions *webservices.SessionService) {
	app.Get("/health", handlers.HealthCheck(webApp))

	api := app.Group("/api", middleware.APIRateLimit())

	// Claimant authentication
	api.Post("/login", middleware.AuthRateLimit(), handlers.Login(webApp))
	api.Post("/logout", handlers.Logout(webApp))

	// Public notice; the session, when present, only enriches request logs
	api.Get("/notice", middleware.OptionalAuth(sessions), handlers.NoticeActive(webApp))

	// Claimant endpoints
	user := api.Group("", middleware.AuthRequired(sessions))
	user.Get("/me", handlers.Me(webApp))
	user.Post("/token", handlers.Claim(webApp))

	// Admin authentication
	adminAPI := app.Group("/api/admin")
	adminAPI.Post("/login", middleware.AuthRateLimit(), handlers.AdminLogin(webApp))
	adminAPI.Post("/logout", handlers.AdminLogout(webApp))

	// Admin endpoints
	admin := adminAPI.Group("", middleware.AdminRequired(sessions))
	admin.Get("/stats", handlers.AdminStats(webApp))
	admin.Get("/keys", handlers.KeysList(webApp))
	admin.Post("/keys", middleware.AuditLogMiddleware("create_key"), handlers.KeysCreate(webApp))
	admin.Post("/keys/:id/toggle", middleware.AuditLogMiddleware("toggle_key"), handlers.KeyToggle(webApp))
	admin.Get("/tokens", handlers.TokensList(webApp))
	admin.Post("/upload-tokens", middleware.AuditLogMiddleware("upload_tokens"), handlers.UploadTokens(webApp))
	admin.Post("/delete-tokens", middleware.AuditLogMiddleware("delete_tokens"), handlers.DeleteTokens(webApp))
	admin.Get("/notice", handlers.NoticeAdminGet(webApp))
	admin.Post("/notice", middleware.AuditLogMiddleware("save_notice"), handlers.NoticeAdminSave(webApp))

	// Unmatched routes
	app.Use(func(c *fiber.Ctx) error {
		slog.Warn("No route matched for request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
		)
		return c.Status(404).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested endpoint does not exist",
		})
	})
}
