package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/providers"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

// FederationService links external identities to accounts and resolves
// federated logins to a platform account.
type FederationService struct {
	socials     SocialAccountRepository
	accounts    AccountRepository
	claims      ClaimCodeRepository
	auth        *AuthService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewFederationService(
	socials SocialAccountRepository,
	accounts AccountRepository,
	claims ClaimCodeRepository,
	auth *AuthService,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *FederationService {
	return &FederationService{
		socials:     socials,
		accounts:    accounts,
		claims:      claims,
		auth:        auth,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LoginWithProfile resolves a verified provider profile to an account,
// creating one on first contact, and completes the login state machine.
func (s *FederationService) LoginWithProfile(ctx context.Context, profile *providers.Profile, claimCode, clientIP string) (*LoginResult, error) {
	account, err := s.ResolveOrCreate(ctx, profile, claimCode)
	if err != nil {
		return nil, err
	}
	return s.auth.FinishLogin(ctx, account, clientIP)
}

// ResolveOrCreate maps a profile to an account in three stages: an existing
// identity link wins; otherwise an email matching an existing account links
// the identity to it; otherwise a new passwordless account is created. A
// claim code, when presented, attaches the resolved account to a tenant on
// whichever branch resolved it, provided the account has no tenant yet.
func (s *FederationService) ResolveOrCreate(ctx context.Context, profile *providers.Profile, claimCode string) (*models.Account, error) {
	account, err := s.resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	if claimCode != "" && account.TenantID == nil {
		if err := s.attachTenant(ctx, account, claimCode); err != nil {
			return nil, err
		}
	}
	return account, nil
}

func (s *FederationService) resolve(ctx context.Context, profile *providers.Profile) (*models.Account, error) {
	link, err := s.socials.GetByProviderID(ctx, string(profile.Provider), profile.ProviderUserID)
	if err == nil {
		account, err := s.accounts.GetByID(ctx, link.AccountID)
		if err != nil {
			s.logger.Error("identity link points at missing account",
				slog.String("provider", string(profile.Provider)),
				slog.String("account_id", link.AccountID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return account, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up identity link", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if profile.Email != "" {
		account, err := s.accounts.GetByEmail(ctx, profile.Email)
		if err == nil {
			if _, err := s.createLink(ctx, account.ID, profile); err != nil {
				return nil, err
			}
			s.auditLogger.LogFederation(account.ID, string(profile.Provider), "identity_linked_by_email", true)
			return account, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up account by email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	return s.createAccount(ctx, profile)
}

// attachTenant consumes a claim code for the account. Consumption is a
// conditional update in the repository, so the code is spent exactly once
// even when two logins race on it.
func (s *FederationService) attachTenant(ctx context.Context, account *models.Account, claimCode string) error {
	claim, err := s.claims.Consume(ctx, claimCode, account.ID)
	if err != nil {
		if errors.Is(err, models.ErrClaimCodeInvalid) {
			return models.ErrClaimCodeInvalid
		}
		s.logger.Error("failed to consume claim code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	account.TenantID = &claim.TenantID
	account.Role = claim.Role
	if err := s.accounts.Update(ctx, account); err != nil {
		s.logger.Error("failed to attach account to tenant", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("claim code consumed",
		slog.String("account_id", account.ID),
		slog.String("tenant_id", claim.TenantID),
		slog.String("role", claim.Role))
	return nil
}

// Link attaches an external identity to an authenticated account.
func (s *FederationService) Link(ctx context.Context, accountID string, profile *providers.Profile) (*models.SocialAccount, error) {
	existing, err := s.socials.GetByProviderID(ctx, string(profile.Provider), profile.ProviderUserID)
	if err == nil {
		if existing.AccountID == accountID {
			return nil, models.ErrConflict
		}
		s.auditLogger.LogFederation(accountID, string(profile.Provider), "identity_link", false)
		return nil, models.ErrIdentityConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up identity link", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	link, err := s.createLink(ctx, accountID, profile)
	if err != nil {
		return nil, err
	}
	s.auditLogger.LogFederation(accountID, string(profile.Provider), "identity_linked", true)
	return link, nil
}

// Unlink removes an identity link. It refuses when that would leave the
// account without any way to sign in.
func (s *FederationService) Unlink(ctx context.Context, accountID, provider string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load account for unlink", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !account.HasPassword() {
		count, err := s.socials.CountByAccount(ctx, accountID)
		if err != nil {
			s.logger.Error("failed to count identity links", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if count <= 1 {
			s.auditLogger.LogFederation(accountID, provider, "identity_unlink", false)
			return models.ErrLastAuthMethod
		}
	}

	if err := s.socials.DeleteByAccountAndProvider(ctx, accountID, provider); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete identity link", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogFederation(accountID, provider, "identity_unlinked", true)
	return nil
}

// ListLinks returns the external identities attached to an account.
func (s *FederationService) ListLinks(ctx context.Context, accountID string) ([]*models.SocialAccount, error) {
	links, err := s.socials.ListByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to list identity links", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return links, nil
}

func (s *FederationService) createLink(ctx context.Context, accountID string, profile *providers.Profile) (*models.SocialAccount, error) {
	link, err := s.socials.Create(ctx, &models.SocialAccount{
		AccountID:      accountID,
		Provider:       string(profile.Provider),
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		DisplayName:    profile.DisplayName,
		AvatarURL:      profile.AvatarURL,
		RawProfile:     profile.RawProfile,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrIdentityConflict
		}
		s.logger.Error("failed to create identity link", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return link, nil
}

// createAccount provisions a passwordless account for a first-contact
// federated identity.
func (s *FederationService) createAccount(ctx context.Context, profile *providers.Profile) (*models.Account, error) {
	firstName, lastName := splitDisplayName(profile.DisplayName)

	account := &models.Account{
		Email:     strings.ToLower(profile.Email),
		FirstName: firstName,
		LastName:  lastName,
		AvatarURL: profile.AvatarURL,
		Role:      "STUDENT",
		Active:    true,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		// A concurrent sign-up with the same email can land here after the
		// email lookup missed; surface it as the conflict it is.
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create federated account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.createLink(ctx, created.ID, profile); err != nil {
		return nil, err
	}

	s.auditLogger.LogFederation(created.ID, string(profile.Provider), "account_created", true)
	return created, nil
}

func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
