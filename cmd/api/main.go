package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/background"
	"github.com/stunity/identity/internal/config"
	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/exchange"
	"github.com/stunity/identity/internal/handlers"
	"github.com/stunity/identity/internal/middleware"
	"github.com/stunity/identity/internal/providers"
	"github.com/stunity/identity/internal/repositories"
	"github.com/stunity/identity/internal/routes"
	"github.com/stunity/identity/internal/services"
	"github.com/stunity/identity/pkg/httpx"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	tenantRepo := repositories.NewTenantRepository(db)
	socialRepo := repositories.NewSocialAccountRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	claimCodeRepo := repositories.NewClaimCodeRepository(db)

	cleanupManager := background.NewCleanupManager(accountRepo, twoFactorRepo, logger, cfg.Auth.CleanupInterval)

	// Token and TOTP managers
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.ChallengeTokenExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// One-time code store for SSO redirects
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startupCancel()

	var exchangeStore exchange.Store
	if cfg.Exchange.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Exchange.RedisAddr,
			Password: cfg.Exchange.RedisPassword,
			DB:       cfg.Exchange.RedisDB,
		})
		store, err := exchange.NewRedisStore(startupCtx, redisClient, cfg.Exchange.CodeTTL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		exchangeStore = store
		logger.Info("exchange store using redis", slog.String("addr", cfg.Exchange.RedisAddr))
	} else {
		memStore := exchange.NewMemoryStore(cfg.Exchange.CodeTTL)
		defer memStore.Stop()
		exchangeStore = memStore
		logger.Info("exchange store using in-process memory")
	}

	// Identity provider verifiers. Providers without credentials configured
	// are left out of the registry and their endpoints 404.
	verifiers := map[providers.Provider]providers.Verifier{}
	if cfg.Providers.Google.ClientID != "" {
		v, err := providers.NewGoogleVerifier(startupCtx, cfg.Providers.Google.ClientID)
		if err != nil {
			logger.Error("failed to initialize google verifier", slog.Any("error", err))
			os.Exit(1)
		}
		verifiers[providers.Google] = v
	}
	if cfg.Providers.Apple.ClientID != "" {
		v, err := providers.NewAppleVerifier(startupCtx, cfg.Providers.Apple.ClientID)
		if err != nil {
			logger.Error("failed to initialize apple verifier", slog.Any("error", err))
			os.Exit(1)
		}
		verifiers[providers.Apple] = v
	}
	if cfg.Providers.Facebook.ClientID != "" {
		verifiers[providers.Facebook] = providers.NewFacebookVerifier(
			cfg.Providers.Facebook.ClientID, cfg.Providers.Facebook.ClientSecret)
	}
	if cfg.Providers.LinkedIn.ClientID != "" {
		verifiers[providers.LinkedIn] = providers.NewLinkedInVerifier(
			cfg.Providers.LinkedIn.ClientID, cfg.Providers.LinkedIn.ClientSecret, cfg.Providers.LinkedIn.RedirectURL)
	}

	// Redirect-based OIDC relying parties for workspace SSO
	relyingParties := map[providers.Provider]*providers.OIDCRelyingParty{}
	if cfg.Providers.GoogleWorkspace.ClientID != "" {
		rp, err := providers.NewOIDCRelyingParty(startupCtx, providers.GoogleWorkspace,
			cfg.Providers.GoogleWorkspace.Issuer,
			cfg.Providers.GoogleWorkspace.ClientID,
			cfg.Providers.GoogleWorkspace.ClientSecret,
			cfg.Providers.GoogleWorkspace.RedirectURL)
		if err != nil {
			logger.Error("failed to initialize google workspace sso", slog.Any("error", err))
			os.Exit(1)
		}
		relyingParties[providers.GoogleWorkspace] = rp
	}
	if cfg.Providers.AzureAD.ClientID != "" {
		rp, err := providers.NewOIDCRelyingParty(startupCtx, providers.AzureAD,
			cfg.Providers.AzureAD.Issuer,
			cfg.Providers.AzureAD.ClientID,
			cfg.Providers.AzureAD.ClientSecret,
			cfg.Providers.AzureAD.RedirectURL)
		if err != nil {
			logger.Error("failed to initialize azure ad sso", slog.Any("error", err))
			os.Exit(1)
		}
		relyingParties[providers.AzureAD] = rp
	}

	// Email sender for password reset links
	var emailSender services.EmailSender
	if cfg.Email.Driver == "ses" {
		sender, err := services.NewAWSSESEmailSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email sender", slog.Any("error", err))
			os.Exit(1)
		}
		emailSender = sender
	} else {
		emailSender = services.NewLogEmailSender(logger)
	}

	// Services
	lockoutGuard := services.NewLockoutGuard(accountRepo, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(twoFactorRepo, accountRepo, totpManager, logger, auditLogger)
	authService := services.NewAuthService(accountRepo, tenantRepo, lockoutGuard, twoFactorService, tokenManager, logger, auditLogger)
	federationService := services.NewFederationService(socialRepo, accountRepo, claimCodeRepo, authService, logger, auditLogger)
	passwordService := services.NewPasswordService(accountRepo, emailSender, cfg.Auth.ResetTokenExpiry, cfg.Email.ResetURLBase, logger, auditLogger)

	// Handlers
	ipConfig := &httpx.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService)
	socialHandler := handlers.NewSocialHandler(federationService, verifiers, ipConfig)
	ssoHandler := handlers.NewSSOHandler(relyingParties, federationService, exchangeStore, cfg.Providers.FrontendURL, ipConfig, logger)
	passwordHandler := handlers.NewPasswordHandler(passwordService, ipConfig)

	// Router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	router.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, twoFactorHandler, socialHandler, ssoHandler, passwordHandler, tokenManager, accountRepo)
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

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
