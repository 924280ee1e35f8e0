package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/handlers"
	"github.com/stunity/identity/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	socialHandler *handlers.SocialHandler,
	ssoHandler *handlers.SSOHandler,
	passwordHandler *handlers.PasswordHandler,
	tokenManager *auth.TokenManager,
	accounts auth.AccountFetcher,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	resetLimit := middleware.RateLimitByIP(middleware.DefaultResetRateLimit())

	// Public routes - credential endpoints are rate limited by IP
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/2fa/verify", authHandler.VerifyChallenge)
	router.With(authLimit).Post("/auth/refresh", authHandler.Refresh)
	router.With(authLimit).Post("/auth/social/{provider}", socialHandler.Login)

	router.With(resetLimit).Post("/auth/forgot-password", passwordHandler.Forgot)
	router.With(resetLimit).Post("/auth/reset-password", passwordHandler.Reset)

	// Browser SSO flow for workspace providers
	router.Get("/auth/sso/{provider}", ssoHandler.Start)
	router.Get("/auth/sso/{provider}/callback", ssoHandler.Callback)
	router.With(authLimit).Post("/auth/sso/exchange", ssoHandler.Exchange)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, accounts))

		r.Post("/auth/change-password", passwordHandler.Change)

		r.Get("/auth/2fa/status", twoFactorHandler.Status)
		r.Post("/auth/2fa/setup", twoFactorHandler.Setup)
		r.Post("/auth/2fa/verify-setup", twoFactorHandler.VerifySetup)
		r.Post("/auth/2fa/backup-codes", twoFactorHandler.RegenerateBackupCodes)
		r.Post("/auth/2fa/disable", twoFactorHandler.Disable)

		r.Get("/auth/social", socialHandler.List)
		r.Post("/auth/social/link", socialHandler.Link)
		r.Delete("/auth/social/unlink/{provider}", socialHandler.Unlink)
	})
}
