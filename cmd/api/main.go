package main

import (
	"fmt"
	"net/http"
	"os"

	"tally/internal/assistant"
	"tally/internal/command"
	"tally/internal/config"
	"tally/internal/database"
	"tally/internal/handlers"
	"tally/internal/importer"
	"tally/internal/logger"
	"tally/internal/merge"
	"tally/internal/middleware"
	"tally/internal/notify"
	"tally/internal/remote"
	"tally/internal/store"
	"tally/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "tally/internal/docs" // Import swagger docs
)

// @title           Tally API
// @version         1.0
// @description     Tally keeps a company's chart of accounts consistent: category hierarchy, payees, merges, CSV import and a confirmed command pipeline.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	// Wire the engine: remote store, change broker, per-company caches.
	remoteStore := remote.NewGormStore(dbManager.DB())
	broker := notify.NewBroker()
	stores := store.NewManager(remoteStore, broker, appConfig.HighlightTTL, log)
	defer stores.Close()

	merger := merge.NewEngine(remoteStore, log)
	importPipeline := importer.NewPipeline(log)
	sequencer := command.NewSequencer(stores, merger, log)

	var generator assistant.Generator
	if appConfig.OpenAIAPIKey != "" {
		generator, err = assistant.NewOpenAIGenerator(appConfig.OpenAIAPIKey, appConfig.OpenAIModel, log)
		if err != nil {
			return fmt.Errorf("failed to create assistant: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set, assistant chat is disabled")
	}

	categoryHandler := handlers.NewCategoryHandler(stores, merger)
	payeeHandler := handlers.NewPayeeHandler(stores)
	importHandler := handlers.NewImportHandler(stores, importPipeline)
	commandHandler := handlers.NewCommandHandler(sequencer, stores, generator)
	changesHandler := handlers.NewChangesHandler(broker)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, all routes tenant-scoped by JWT
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())

	categories := v1.Group("/categories")
	categories.GET("", categoryHandler.ListCategories)
	categories.POST("", categoryHandler.CreateCategory)
	categories.PATCH("/:id", categoryHandler.UpdateCategory)
	categories.POST("/:id/move", categoryHandler.MoveCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)
	categories.GET("/:id/usage", categoryHandler.GetCategoryUsage)
	categories.POST("/merge", categoryHandler.MergeCategories)

	payees := v1.Group("/payees")
	payees.GET("", payeeHandler.ListPayees)
	payees.POST("", payeeHandler.CreatePayee)
	payees.PATCH("/:id", payeeHandler.RenamePayee)
	payees.DELETE("/:id", payeeHandler.DeletePayee)

	v1.POST("/import/categories", importHandler.ImportCategories)
	v1.GET("/export/categories", importHandler.ExportCategories)
	v1.POST("/import/payees", importHandler.ImportPayees)
	v1.GET("/export/payees", importHandler.ExportPayees)

	commands := v1.Group("/commands")
	commands.POST("/propose", commandHandler.ProposeCommands)
	commands.POST("/confirm", commandHandler.ConfirmCommands)
	commands.POST("/cancel", commandHandler.CancelCommands)
	commands.POST("/chat", commandHandler.Chat)

	v1.GET("/changes", changesHandler.Stream)

	log.Infof("Starting Tally backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
