package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and token errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("token is invalid")

	// Account and tenant state errors
	ErrAccountInactive = errors.New("account is deactivated")
	ErrTenantInactive  = errors.New("school is deactivated")
	ErrTenantExpired   = errors.New("school subscription has expired")

	// Two-factor errors
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")

	// Federation errors
	ErrProviderVerification = errors.New("identity provider verification failed")
	ErrIdentityConflict     = errors.New("identity is linked to another account")
	ErrLastAuthMethod       = errors.New("cannot remove the only sign-in method")

	// Password flow errors
	ErrPasswordReuse        = errors.New("password was used recently")
	ErrResetTokenInvalid    = errors.New("reset token is invalid or expired")
	ErrClaimCodeInvalid     = errors.New("claim code is invalid or already used")
	ErrExchangeCodeInvalid  = errors.New("exchange code is invalid or expired")
)

// AccountLockedError carries the remaining lockout window so callers
// can surface a Retry-After to the client.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	minutes := int(e.RetryAfter.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", minutes)
}
