package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "group-decision/docs" // This is for Swagger
	"group-decision/internal/auth"
	"group-decision/internal/config"
	"group-decision/internal/database"
	"group-decision/internal/engine"
	"group-decision/internal/handlers"
	"group-decision/internal/logger"
	"group-decision/internal/middleware"
	"group-decision/internal/repository"
	"group-decision/internal/scheduler"
	"group-decision/internal/service"
	"group-decision/internal/vault"
	"group-decision/migrations"

	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Group Decision API
// @version 1.0
// @description Resolves group decisions by maximizing fairness-weighted satisfaction.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rollback := flag.Bool("migrate-down", false, "revert the most recent migration and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: logFormat(cfg.App.Env),
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", logger.GetLevel(cfg.Log.Level),
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Database connection established")

	migrator := database.NewMigrationExecutor(db.DB)
	if *rollback {
		if err := migrator.Rollback(migrations.FS); err != nil {
			slog.Error("Failed to roll back migration", "error", err)
			os.Exit(1)
		}
		return
	}
	if err := migrator.RunMigrations(migrations.FS); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	healthChecks := map[string]handlers.HealthChecker{"database": db}

	// Dietary requirements are encrypted at rest when Vault is enabled
	var cipher repository.Cipher
	if cfg.Vault.Enabled {
		ctx, cancel := getContext(30 * time.Second)
		vaultClient, err := vault.NewClient(ctx, &vault.Config{
			Address:      cfg.Vault.Address,
			Token:        cfg.Vault.Token,
			TransitMount: cfg.Vault.TransitMount,
			KeyName:      cfg.Vault.KeyName,
		})
		cancel()
		if err != nil {
			slog.Error("Failed to initialize Vault client", "error", err)
			os.Exit(1)
		}
		cipher = vaultClient
		healthChecks["vault"] = handlers.HealthCheckFunc(vaultClient.Health)
		slog.Info("Vault transit encryption enabled", "vault_addr", cfg.Vault.Address, "key", cfg.Vault.KeyName)
	} else {
		slog.Warn("Vault is disabled - dietary requirements are stored unencrypted")
	}

	decisionRepo := repository.NewDecisionRepository(db.DB)
	constraintRepo := repository.NewConstraintRepository(db.DB, cipher)
	resultRepo := repository.NewResultRepository(db.DB)
	fairnessRepo := repository.NewFairnessRepository(db.DB)

	authService, err := auth.NewService(&cfg.JWT)
	if err != nil {
		slog.Error("Failed to initialize token verification", "error", err)
		os.Exit(1)
	}
	decisionService := service.NewDecisionService(
		db.DB,
		decisionRepo,
		constraintRepo,
		resultRepo,
		fairnessRepo,
		engine.New(),
		cfg.Decision,
	)

	// Runs stuck in processing for several resolve timeouts are assumed to have crashed
	schedulerService := scheduler.NewScheduler(decisionService, &cfg.Scheduler, 5*cfg.Decision.ResolveTimeout)
	schedulerService.Start()
	defer schedulerService.Stop()

	authMw := middleware.NewAuthMiddleware(authService)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)
	defer rateLimiter.Close()

	decisionHandler := handlers.NewDecisionHandler(decisionService)
	healthHandler := handlers.NewHealthHandler(cfg.App.Version, healthChecks)

	mux := http.NewServeMux()
	protected := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rateLimiter.Limit(h))
	}

	mux.Handle("POST /api/v1/decisions", protected(decisionHandler.CreateDecision))
	mux.Handle("GET /api/v1/decisions/{id}", protected(decisionHandler.GetDecision))
	mux.Handle("POST /api/v1/decisions/{id}/constraints", protected(decisionHandler.SubmitConstraint))
	mux.Handle("POST /api/v1/decisions/{id}/resolve", protected(decisionHandler.ResolveDecision))
	mux.Handle("GET /api/v1/decisions/{id}/result", protected(decisionHandler.GetResult))
	mux.Handle("GET /api/v1/decisions/{id}/alternatives/{optionId}/explanation", protected(decisionHandler.ExplainAlternative))
	mux.Handle("GET /api/v1/groups/{id}/fairness/me", protected(decisionHandler.ExplainMyFairness))

	mux.Handle("GET /api/v1/health", rateLimiter.Limit(http.HandlerFunc(healthHandler.Health)))
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(mux),
		),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
