package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/traintrack/gatekeeper/internal/auth"
	"github.com/traintrack/gatekeeper/internal/handlers"
	"github.com/traintrack/gatekeeper/internal/middleware"
	"github.com/traintrack/gatekeeper/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	loginHandler *handlers.LoginHandler,
	blacklistHandler *handlers.BlacklistHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
) {
	// Rate limiting config for the public admission endpoints
	rateLimitConfig := middleware.DefaultEvaluateRateLimit()

	// Public routes - called by the authentication service
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		loginHandler.RegisterRoutes(r)
	})

	// Admin routes - authentication and admin role required
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireRole(userRepo, "admin"))
		blacklistHandler.RegisterRoutes(r)
	})
}
