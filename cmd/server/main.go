// backend/cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/nkorzh/psyassist/backend/internal/analytics"
	"github.com/nkorzh/psyassist/backend/internal/api/handlers"
	"github.com/nkorzh/psyassist/backend/internal/config"
	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/health"
	"github.com/nkorzh/psyassist/backend/internal/middleware"
	"github.com/nkorzh/psyassist/backend/internal/repository"
	"github.com/nkorzh/psyassist/backend/pkg/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting psyassist backend...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)
	statsService := analytics.NewService(dbManager.DB, logger)
	healthChecker := health.NewHealthChecker(dbManager, logger)

	knowledgeHandler := handlers.NewKnowledgeHandler(repoManager, cache, logger)
	activityHandler := handlers.NewActivityHandler(repoManager, cache, statsService, logger)
	cacheHandler := handlers.NewCacheHandler(cache, logger)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())

	rateLimiter := middleware.NewRateLimiter(120)
	router.Use(rateLimiter.RateLimit())

	router.GET("/health", func(c *gin.Context) {
		summary := healthChecker.Summary()
		code := http.StatusOK
		if summary.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, summary)
	})
	router.GET("/health/detailed", func(c *gin.Context) {
		overall := healthChecker.CheckAll()
		code := http.StatusOK
		if overall.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, overall)
	})

	api := router.Group("/api")
	{
		api.GET("/knowledge", knowledgeHandler.HandleList)
		api.GET("/knowledge/categories", knowledgeHandler.HandleCategories)
		api.GET("/knowledge/:command", knowledgeHandler.HandleGetByCommand)

		api.GET("/users/:id/state", activityHandler.HandleGetState)
		api.PUT("/users/:id/state", activityHandler.HandleSetState)

		api.POST("/actions", activityHandler.HandleLogAction)
		api.POST("/feedback", activityHandler.HandleCreateFeedback)
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AdminAuth(cfg.Admin.Token))
	{
		admin.POST("/knowledge", knowledgeHandler.HandleCreate)
		admin.PUT("/knowledge/:id", knowledgeHandler.HandleUpdate)
		admin.GET("/actions", activityHandler.HandleRecentActions)
		admin.GET("/feedback", activityHandler.HandleListFeedback)
		admin.GET("/reports/engagement", activityHandler.HandleEngagementReport)
		admin.GET("/reports/exercises", activityHandler.HandleExerciseReport)
		admin.GET("/reports/users", activityHandler.HandleUserReport)
		admin.GET("/cache/stats", cacheHandler.HandleStats)
		admin.POST("/cache/clear", cacheHandler.HandleClear)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced server shutdown")
	}

	logger.Info("Server stopped")
}
