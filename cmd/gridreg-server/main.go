package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/admin"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/apikeys"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/auth"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/database"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/elements"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/groups"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/importexport"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
)

// @title gridreg API
// @version 1.0
// @description Group registry for power-network element tables: named groups
// @description over heterogeneous per-type tables, with bulk operations and
// @description consistency repair.

// @license.name MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token or API key. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("GRIDREG_DB_PATH")
	if dbPath == "" {
		dbPath = "gridreg.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Create default admin user if no admin exists
	if err := ensureAdminExists(); err != nil {
		log.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "gridreg",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(database.GetDB())
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(database.GetDB())

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(database.GetDB())
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Network-scoped routes (protected - accepts JWT or API key)
		networksGroup := api.Group("/networks")
		networksGroup.Use(combinedAuth)

		networksHandler := networks.NewHandler(database.GetDB())
		networksHandler.RegisterRoutes(networksGroup)

		elementsHandler := elements.NewHandler(database.GetDB())
		elementsHandler.RegisterRoutes(networksGroup)

		groupsHandler := groups.NewHandler(database.GetDB())
		groupsHandler.RegisterRoutes(networksGroup)
		groupsHandler.RegisterMemberRoutes(networksGroup)

		importExportHandler := importexport.NewHandler(database.GetDB())
		importExportHandler.RegisterRoutes(networksGroup)

		// Admin routes (JWT only, admin role required)
		adminHandler := admin.NewHandler(database.GetDB())
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting gridreg server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// ensureAdminExists creates a default admin user if no admin exists in the database.
func ensureAdminExists() error {
	db := database.GetDB()

	// Check if any admin user exists
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	// Create default admin user
	hashedPassword, err := auth.HashPassword("changeme")
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        "admin@gridreg.local",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Printf("Created default admin user: admin@gridreg.local (password: changeme)")
	return nil
}
