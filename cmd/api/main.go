package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/traintrack/gatekeeper/internal/auth"
	"github.com/traintrack/gatekeeper/internal/background"
	"github.com/traintrack/gatekeeper/internal/config"
	"github.com/traintrack/gatekeeper/internal/database"
	"github.com/traintrack/gatekeeper/internal/handlers"
	middlewareCustom "github.com/traintrack/gatekeeper/internal/middleware"
	"github.com/traintrack/gatekeeper/internal/models"
	"github.com/traintrack/gatekeeper/internal/repositories"
	"github.com/traintrack/gatekeeper/internal/routes"
	"github.com/traintrack/gatekeeper/internal/services"
	"github.com/traintrack/gatekeeper/internal/store"
	pkghttp "github.com/traintrack/gatekeeper/pkg/http"
	pkglogger "github.com/traintrack/gatekeeper/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("fail_policy", cfg.Lockout.FailPolicy))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize counter store
	counters, err := store.NewRedisCounterStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer counters.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	blacklistRepo := repositories.NewBlacklistRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(loginAttemptRepo, blacklistRepo, logger, cfg.Auth.CleanupInterval)

	// Initialize token manager for the admin surface
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Enable composite signing with per-user TokenKey
	tokenManager.SetUserRepo(userRepo)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	blacklistService := services.NewBlacklistService(blacklistRepo, logger, auditLogger)
	lockoutService := services.NewLockoutService(counters, cfg.Lockout, logger)
	loginService := services.NewLoginService(blacklistRepo, lockoutService, loginAttemptRepo, cfg.Lockout, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	loginHandler := handlers.NewLoginHandler(loginService, ipConfig)
	blacklistHandler := handlers.NewBlacklistHandler(blacklistService)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes under the versioned prefix
	router.Route("/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, loginHandler, blacklistHandler, tokenManager, userRepo)
	})

	// Health check with database and counter store
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "up"
		redisStatus := "up"
		healthy := true

		if err := db.HealthCheck(ctx); err != nil {
			dbStatus = "down"
			healthy = false
		}
		if err := counters.HealthCheck(ctx); err != nil {
			redisStatus = "down"
			// Counter store outages are survivable under fail-open
			if cfg.Lockout.FailPolicy == config.FailClosed {
				healthy = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		status := "healthy"
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			status = "unhealthy"
		}
		fmt.Fprintf(w, `{"status":%q,"database":%q,"redis":%q}`, status, dbStatus, redisStatus)
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL is set.
// Admin accounts here only manage the blacklist; credentials live with
// the external authentication service, so no password is stored.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		logger.Info("no ADMIN_EMAIL set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	admin := &models.User{
		Email:    adminEmail,
		Role:     "admin",
		Status:   "active",
		TokenKey: uuid.New().String(),
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
