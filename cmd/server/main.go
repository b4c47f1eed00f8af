package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fixmate/backend/internal/api/handlers"
	"github.com/fixmate/backend/internal/config"
	"github.com/fixmate/backend/internal/database"
	"github.com/fixmate/backend/internal/embedding"
	"github.com/fixmate/backend/internal/health"
	"github.com/fixmate/backend/internal/middleware"
	"github.com/fixmate/backend/internal/migration"
	"github.com/fixmate/backend/internal/repository"
	"github.com/fixmate/backend/internal/services"
	"github.com/fixmate/backend/internal/vectorstore"
	"github.com/fixmate/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	healthCheckInterval = 30 * time.Second
	reloadInterval      = 5 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting fixmate query orchestration server...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateOrchestrator(); err != nil {
		logger.WithError(err).Fatal("Orchestrator configuration invalid")
	}
	if err := cfg.ValidateEmbedder(); err != nil {
		logger.WithError(err).Fatal("Embedder configuration invalid")
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

	runner := migration.NewRunner(dbManager, logger)
	if err := runner.RunMigrations("./migrations"); err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	embedder := embedding.NewClient(cfg.Embedder.BaseURL, cfg.Embedder.Model, logger)

	vectorIndex := vectorstore.NewMemoryIndex(logger)
	if err := vectorIndex.LoadFrom(repoManager.ManualChunk); err != nil {
		logger.WithError(err).Warn("Failed to load manual chunks; semantic fallback starts empty")
	}

	safety := services.NewSafetyClassifier(nil, logger)
	if err := safety.ReloadFrom(repoManager.SafetyRule); err != nil {
		logger.WithError(err).Warn("Failed to load safety rules; classifier defaults to caution")
	}

	contexts := services.NewContextResolver(repoManager.UserContext, cache, logger)
	lookup := services.NewExactMatchService(repoManager.QAEntry, logger)
	semantic := services.NewSemanticSearchService(embedder, vectorIndex, cfg.Orchestrator.SemanticCap, logger)
	composer := services.NewResponseComposer(repoManager.QAEntry, logger)

	orchestrator := services.NewOrchestrator(
		contexts, lookup, semantic, safety, composer,
		cfg.Orchestrator, logger,
	)

	resolveHandler := handlers.NewResolveHandler(orchestrator, contexts, repoManager, cache, logger)
	checker := health.NewChecker(dbManager, repoManager.SystemHealth, embedder, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go checker.PeriodicHealthCheck(ctx, healthCheckInterval)
	go periodicReload(ctx, vectorIndex, safety, repoManager, logger)

	router := setupRouter(resolveHandler, checker, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Orchestrator.GlobalDeadline + 5*time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}

func setupRouter(resolveHandler *handlers.ResolveHandler, checker *health.Checker, logger *logrus.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	rateLimiter := middleware.NewRateLimiter(60)
	router.Use(rateLimiter.RateLimit())

	router.GET("/health", func(c *gin.Context) {
		if cached, err := checker.CheckCached(c.Request.Context()); err == nil {
			c.JSON(statusCode(cached.Status), cached.Summary())
			return
		}
		overall := checker.CheckAll()
		c.JSON(statusCode(overall.Status), overall.Summary())
	})

	// Fresh probes on every call, bypassing the cached status.
	router.GET("/health/detailed", func(c *gin.Context) {
		overall := checker.CheckAll()
		c.JSON(statusCode(overall.Status), overall)
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/resolve", resolveHandler.HandleResolve)
		v1.GET("/suggestions", resolveHandler.HandleSuggestions)
		v1.PUT("/context", resolveHandler.HandleContextUpdate)
		v1.GET("/context/:requester_id", resolveHandler.HandleGetContext)
		v1.GET("/entries", resolveHandler.HandleListEntries)
		v1.GET("/entries/:id", resolveHandler.HandleGetEntry)
	}

	return router
}

func statusCode(status string) int {
	if status == "unhealthy" {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// periodicReload refreshes the in-memory vector index and the safety
// rule table so newly seeded content is picked up without a restart.
func periodicReload(ctx context.Context, index *vectorstore.MemoryIndex, safety *services.SafetyClassifier, repoManager *repository.RepositoryManager, logger *logrus.Logger) {
	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := index.LoadFrom(repoManager.ManualChunk); err != nil {
				logger.WithError(err).Warn("Vector index reload failed")
			}
			if err := safety.ReloadFrom(repoManager.SafetyRule); err != nil {
				logger.WithError(err).Warn("Safety rule reload failed")
			}
		}
	}
}
