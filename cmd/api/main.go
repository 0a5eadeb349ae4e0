package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sjperalta/khata-api/internal/cache"
	"github.com/sjperalta/khata-api/internal/config"
	"github.com/sjperalta/khata-api/internal/database"
	"github.com/sjperalta/khata-api/internal/handlers"
	"github.com/sjperalta/khata-api/internal/jobs"
	"github.com/sjperalta/khata-api/internal/middleware"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// @title Khata API
// @version 1.0
// @description Store-credit ledger, point-of-sale sales and terminal sync
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.SetupWithLevel(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry (GlitchTip) when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	// Optional redis cache, the API works without it
	cacheStore, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis unavailable, customer summaries will not be cached", "error", err)
	} else if cacheStore.Enabled() {
		logger.Info("Connected to redis")
	}

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, cacheStore, cfg)

	syncLimiter := middleware.NewOwnerRateLimiter(cfg.SyncRateLimit, cfg.SyncBurst)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg, syncLimiter)

	// Initialize handlers
	h := handlers.NewHandlers(svcs)

	// Setup router
	router := setupRouter(h, cfg, syncLimiter)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker, pending audit writes are drained first
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if err := cacheStore.Close(); err != nil {
		logger.Warn("Failed to close redis", "error", err)
	}

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, syncLimiter *middleware.OwnerRateLimiter) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.RegisterRoutes(router.Group("/api/v1"), cfg.JWTSecret, syncLimiter.Middleware())

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config, syncLimiter *middleware.OwnerRateLimiter) {
	// Finish rollbacks that could not complete inline
	worker.ScheduleEvery("recover_sagas", cfg.SagaRecoveryInterval, svcs.Sale.RecoverSagas)

	// Refresh the overdue installment gauge
	worker.ScheduleEveryImmediate("overdue_scan", cfg.OverdueScanInterval, svcs.Ledger.ScanOverdue)

	worker.ScheduleEvery("rate_limiter_cleanup", 5*time.Minute, func(ctx context.Context) error {
		syncLimiter.Cleanup()
		return nil
	})

	logger.Info("Scheduled recurring jobs")
}
