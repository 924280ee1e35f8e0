package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	pkgauth "github.com/stunity/identity/pkg/auth"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

// TwoFactorVerifier is the slice of the two-factor service the orchestrator
// needs: whether an account is enrolled, and whether a submitted code is
// good.
type TwoFactorVerifier interface {
	Enabled(ctx context.Context, accountID string) (bool, error)
	VerifyLoginCode(ctx context.Context, accountID, code string) error
}

// AuthService drives the login state machine: credential check, account and
// tenant state checks, lockout bookkeeping, the optional second-factor
// challenge, and token issuance.
type AuthService struct {
	accounts    AccountRepository
	tenants     TenantRepository
	guard       *LockoutGuard
	twoFactor   TwoFactorVerifier
	tm          *auth.TokenManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(
	accounts AccountRepository,
	tenants TenantRepository,
	guard *LockoutGuard,
	twoFactor TwoFactorVerifier,
	tm *auth.TokenManager,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		accounts:    accounts,
		tenants:     tenants,
		guard:       guard,
		twoFactor:   twoFactor,
		tm:          tm,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LoginResult is the outcome of a login attempt. Either Requires2FA is set
// with a challenge token, or the token pair and identity snapshot are.
type LoginResult struct {
	Requires2FA       bool                   `json:"requires_2fa"`
	ChallengeToken    string                 `json:"challenge_token,omitempty"`
	Tokens            *models.TokenPair      `json:"tokens,omitempty"`
	Account           *models.AccountSummary `json:"account,omitempty"`
	Tenant            *models.TenantSummary  `json:"tenant,omitempty"`
	IsDefaultPassword bool                   `json:"is_default_password,omitempty"`
}

// Login authenticates with email and password.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     clientIP,
				FailureReason: "unknown_email",
				Success:       false,
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// State checks run before the password is touched; a locked or
	// deactivated account rejects even correct credentials.
	tenant, err := s.checkAccountState(ctx, account)
	if err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_rejected",
			AccountID:     account.ID,
			IPAddress:     clientIP,
			FailureReason: "account_state",
			Success:       false,
		})
		return nil, err
	}

	if err := s.guard.CheckLock(ctx, account); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_rejected",
			AccountID:     account.ID,
			IPAddress:     clientIP,
			FailureReason: "locked",
			Success:       false,
		})
		return nil, err
	}

	if !account.HasPassword() || pkgauth.ComparePassword(account.PasswordHash, password) != nil {
		if ferr := s.guard.RecordFailure(ctx, account); ferr != nil {
			return nil, ferr
		}
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			AccountID:     account.ID,
			IPAddress:     clientIP,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, models.ErrInvalidCredentials
	}

	return s.finishLogin(ctx, account, tenant, clientIP, true)
}

// FinishLogin completes authentication for an already-verified identity
// (federated logins and SSO callbacks). The second-factor fork still
// applies.
func (s *AuthService) FinishLogin(ctx context.Context, account *models.Account, clientIP string) (*LoginResult, error) {
	tenant, err := s.checkAccountState(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckLock(ctx, account); err != nil {
		return nil, err
	}
	return s.finishLogin(ctx, account, tenant, clientIP, true)
}

// CompleteChallenge verifies the second factor and finishes the login the
// challenge token was issued for.
func (s *AuthService) CompleteChallenge(ctx context.Context, challengeToken, code, clientIP string) (*LoginResult, error) {
	claims, err := s.tm.ValidateToken(challengeToken, models.TokenTypeChallenge)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to load account for challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The challenge dies with a password change, like any other token.
	if account.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(*account.PasswordChangedAt) {
		return nil, models.ErrTokenInvalid
	}

	tenant, err := s.checkAccountState(ctx, account)
	if err != nil {
		return nil, err
	}

	if err := s.twoFactor.VerifyLoginCode(ctx, account.ID, code); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "2fa_failed",
			AccountID:     account.ID,
			IPAddress:     clientIP,
			FailureReason: "invalid_code",
			Success:       false,
		})
		return nil, err
	}

	return s.finishLogin(ctx, account, tenant, clientIP, false)
}

// Refresh exchanges a refresh token for a fresh token pair. The refresh
// token is rejected when it predates the last password change.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tm.ValidateToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to load account for refresh", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(*account.PasswordChangedAt) {
		return nil, models.ErrTokenInvalid
	}

	tenant, err := s.checkAccountState(ctx, account)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(account, tenant)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		Tokens:  tokens,
		Account: account.Summary(),
	}
	if tenant != nil {
		result.Tenant = tenant.Summary()
	}
	return result, nil
}

// checkAccountState enforces account and tenant gates and returns the
// tenant for token issuance.
func (s *AuthService) checkAccountState(ctx context.Context, account *models.Account) (*models.Tenant, error) {
	if !account.Active {
		return nil, models.ErrAccountInactive
	}

	if account.TenantID == nil {
		return nil, nil
	}

	tenant, err := s.tenants.GetByID(ctx, *account.TenantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTenantInactive
		}
		s.logger.Error("failed to load tenant",
			slog.String("tenant_id", *account.TenantID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !tenant.Active {
		return nil, models.ErrTenantInactive
	}
	if tenant.SubscriptionExpired(time.Now()) {
		return nil, models.ErrTenantExpired
	}
	return tenant, nil
}

// finishLogin forks to the second-factor challenge when enrollment is
// enabled and check2FA is set, otherwise issues tokens and records the
// success.
func (s *AuthService) finishLogin(ctx context.Context, account *models.Account, tenant *models.Tenant, clientIP string, check2FA bool) (*LoginResult, error) {
	if check2FA && s.twoFactor != nil {
		enabled, err := s.twoFactor.Enabled(ctx, account.ID)
		if err != nil {
			s.logger.Error("failed to check two-factor enrollment",
				slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if enabled {
			challenge, err := s.tm.GenerateChallengeToken(account.ID)
			if err != nil {
				s.logger.Error("failed to generate challenge token", slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
			return &LoginResult{
				Requires2FA:    true,
				ChallengeToken: challenge,
			}, nil
		}
	}

	tokens, err := s.issueTokens(account, tenant)
	if err != nil {
		return nil, err
	}

	if err := s.guard.RecordSuccess(ctx, account); err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: account.ID,
		IPAddress: clientIP,
		Success:   true,
	})
	s.logger.Info("login successful",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)),
	)

	result := &LoginResult{
		Tokens:            tokens,
		Account:           account.Summary(),
		IsDefaultPassword: account.IsDefaultPassword,
	}
	if tenant != nil {
		result.Tenant = tenant.Summary()
	}
	return result, nil
}

func (s *AuthService) issueTokens(account *models.Account, tenant *models.Tenant) (*models.TokenPair, error) {
	accessToken, err := s.tm.GenerateAccessToken(account, tenant)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.GenerateRefreshToken(account.ID)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
