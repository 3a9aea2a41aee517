package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/cache"
	"github.com/tinysteps-edu/dashboard-service/internal/config"
	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/guard"
	"github.com/tinysteps-edu/dashboard-service/internal/handlers"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories/local"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories/postgres"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
	"github.com/tinysteps-edu/dashboard-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	appLogger := utils.NewSlogLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("Redis connection failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	cacheSvc := cache.NewRedisCache(redisClient, logger)

	// Backend selection happens once, here. A hosted deployment needs both a
	// database and an identity provider; anything less runs the local demo
	// store with a static identity.
	repo, provider := selectBackend(cfg, logger)
	defer repo.Close()

	session := identity.NewSession(provider, cacheSvc, appLogger).Start(ctx)
	resolver := identity.NewResolver(provider, cacheSvc, appLogger)
	g := guard.New(session, resolver, cfg.Guard, appLogger)

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("Event publisher init failed", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	validator := utils.NewValidator()

	studentService := services.NewStudentService(repo, cacheSvc, logger, validator)
	billingService := services.NewBillingService(repo, logger, validator)
	userService := services.NewUserService(repo, provider, resolver, publisher, logger, validator)
	mappingService := services.NewMappingService(repo, logger, validator)
	provisioningService := services.NewProvisioningService(repo, provider, logger)

	if cfg.Events.Enabled && cfg.Events.Publisher == "kafka" {
		router, err := events.NewAccountRouter(events.RouterConfig{
			KafkaBrokers:  cfg.Events.GetKafkaBrokers(),
			Topic:         cfg.Events.AccountTopic,
			ConsumerGroup: "dashboard-service",
			Logger:        logger,
		}, provisioningService)
		if err != nil {
			logger.Error("Account event router init failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := router.Run(ctx); err != nil {
				logger.Error("Account event router stopped", "error", err)
			}
		}()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(utils.LoggerMiddleware(appLogger))

	hm := handlers.NewHandlerManager(
		session,
		resolver,
		studentService,
		billingService,
		userService,
		mappingService,
		provisioningService,
		publisher,
		validator,
		appLogger,
	)
	hm.SetupRoutes(engine, g)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Dashboard service listening",
			"port", cfg.Port,
			"backend", repo.Backend(),
			"environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// selectBackend decides, once at startup, which data backend and identity
// provider the process runs on. There is no silent mid-session fallback:
// later failures surface as operation errors.
func selectBackend(cfg *config.Config, logger *slog.Logger) (repositories.Repository, identity.Provider) {
	if cfg.DatabaseURL != "" && cfg.Identity.Configured() {
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			logger.Error("Database connection failed", "error", err)
			os.Exit(1)
		}
		repo, err := postgres.New(db)
		if err != nil {
			logger.Error("Repository init failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Using hosted backend")
		return repo, identity.NewCasdoorProvider(cfg.Identity)
	}

	if cfg.DatabaseURL != "" || cfg.Identity.Configured() {
		logger.Warn("Partial hosted configuration, falling back to local demo store",
			"database_configured", cfg.DatabaseURL != "",
			"identity_configured", cfg.Identity.Configured())
	}

	repo, err := local.New(cfg.LocalStorePath, logger)
	if err != nil {
		logger.Error("Local store init failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Using local demo backend", "path", cfg.LocalStorePath)
	return repo, identity.NewStaticProvider("t_demo", "Teacher", string(models.RoleTeacher))
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
