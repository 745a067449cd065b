package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpanel/backend/internal/backups"
	"github.com/driftpanel/backend/internal/config"
	"github.com/driftpanel/backend/internal/daemon"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/handlers"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
	"github.com/driftpanel/backend/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser()

	// Persist the JWT secret so sessions survive restarts
	cfg.JWTSecret = database.EnsureJWTSecret(cfg)

	// Backup tracker registry, one tracker per server
	manager := backups.NewManager(backups.SweepPolicy{
		PollInterval:  cfg.SweepPollInterval,
		MaxAttempts:   cfg.SweepMaxAttempts,
		DeletionDelay: cfg.SweepDeletionDelay,
	})
	defer manager.Close()

	// Subscribe to the event feeds of known servers up front so progress
	// events arriving before the first panel request are not lost
	registerActiveServers(manager)

	// Start scheduled backups
	schedulerService := services.NewBackupSchedulerService(manager)
	go schedulerService.Start()

	// Start offsite FTP mirroring
	mirrorService := services.NewOffsiteMirrorService(cfg)
	go mirrorService.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "DriftPanel API v1.0",
		ServerHeader: "DriftPanel",
		BodyLimit:    50 * 1024 * 1024, // 50MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "driftpanel-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	backupHandler := handlers.NewBackupHandler(cfg, manager)
	serverHandler := handlers.NewServerHandler(manager)
	nodeHandler := handlers.NewNodeHandler()
	scheduleHandler := handlers.NewScheduleHandler()
	userHandler := handlers.NewUserHandler()
	auditHandler := handlers.NewAuditHandler()

	// API routes
	api := app.Group("/api")

	// Apply rate limiting to API routes (100 requests per minute by default)
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public routes
	api.Post("/auth/login", authHandler.Login)
	api.Get("/backups/download/:token", backupHandler.Download)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg), middleware.AuditLogger())

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/password", authHandler.ChangePassword)

	// 2FA routes
	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	// Server routes
	servers := protected.Group("/servers")
	servers.Get("/", serverHandler.List)
	servers.Get("/:server", serverHandler.Get)
	servers.Post("/", middleware.AdminOnly(), serverHandler.Create)
	servers.Put("/:server", middleware.AdminOnly(), serverHandler.Update)
	servers.Delete("/:server", middleware.AdminOnly(), serverHandler.Delete)
	servers.Post("/:server/status", middleware.AdminOnly(), serverHandler.SetStatus)

	// Backup routes (per server)
	servers.Get("/:server/backups", backupHandler.List)
	servers.Post("/:server/backups", backupHandler.Create)
	servers.Post("/:server/backups/refresh", backupHandler.Refresh)
	servers.Delete("/:server/backups/:backup", backupHandler.Delete)
	servers.Post("/:server/backups/:backup/retry", backupHandler.Retry)
	servers.Post("/:server/backups/:backup/restore", backupHandler.Restore)
	servers.Post("/:server/backups/:backup/rename", backupHandler.Rename)
	servers.Post("/:server/backups/:backup/lock", backupHandler.ToggleLock)
	servers.Post("/:server/backups/:backup/download-token", backupHandler.DownloadToken)

	// Backup schedule routes (per server)
	servers.Get("/:server/schedules", scheduleHandler.List)
	servers.Post("/:server/schedules", scheduleHandler.Create)
	servers.Put("/:server/schedules/:id", scheduleHandler.Update)
	servers.Delete("/:server/schedules/:id", scheduleHandler.Delete)
	servers.Get("/:server/backup-runs", scheduleHandler.Runs)

	// FTP connectivity test for schedule settings
	protected.Post("/schedules/test-ftp", scheduleHandler.TestFTP)

	// Node routes (Admin only)
	nodes := protected.Group("/nodes", middleware.AdminOnly())
	nodes.Get("/", nodeHandler.List)
	nodes.Get("/:id", nodeHandler.Get)
	nodes.Post("/", nodeHandler.Create)
	nodes.Put("/:id", nodeHandler.Update)
	nodes.Delete("/:id", nodeHandler.Delete)

	// User management routes (Admin only)
	users := protected.Group("/users", middleware.AdminOnly())
	users.Get("/", userHandler.List)
	users.Post("/", userHandler.Create)
	users.Put("/:id", userHandler.Update)
	users.Delete("/:id", userHandler.Delete)

	// Audit log routes (Admin only)
	protected.Get("/audit", middleware.AdminOnly(), auditHandler.List)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		schedulerService.Stop()
		mirrorService.Stop()
		manager.Close()
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting DriftPanel API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// registerActiveServers creates trackers for all active servers on active
// nodes so their event feeds are consumed from startup
func registerActiveServers(manager *backups.Manager) {
	var servers []models.Server
	if err := database.DB.Preload("Node").Where("status = ?", models.ServerStatusActive).Find(&servers).Error; err != nil {
		log.Printf("Failed to load servers for backup tracking: %v", err)
		return
	}

	registered := 0
	for i := range servers {
		server := servers[i]
		if server.Node == nil || !server.Node.IsActive {
			continue
		}
		api := daemon.NewClient(server.Node.BaseURL(), server.Node.Token).Server(server.UUID)
		manager.Register(server.UUID, api, api)
		registered++
	}
	log.Printf("Tracking backups for %d servers", registered)
}

func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&count)

	if count == 0 {
		log.Println("Creating default admin user...")

		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

		admin := models.User{
			Username:            "admin",
			Password:            string(hashedPassword),
			Email:               "admin@driftpanel.local",
			FullName:            "System Administrator",
			UserType:            models.UserTypeAdmin,
			ForcePasswordChange: true,
			IsActive:            true,
		}

		if err := database.DB.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Admin user created successfully (username: admin, password: admin123)")
		}
	}
}
