package models

import "time"

// PasswordHistoryLimit bounds how many previous password hashes are retained
// for reuse checks, so the check covers the current hash plus the last four.
// The oldest entry is evicted when the limit is reached.
const PasswordHistoryLimit = 4

// Account represents a platform identity. Accounts created through identity
// federation may have no password hash until one is set explicitly.
type Account struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	Role              string     `json:"role"`
	TenantID          *string    `json:"tenant_id,omitempty"`
	Active            bool       `json:"active"`
	FailedAttempts    int        `json:"-"`
	LockedUntil       *time.Time `json:"-"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	LoginCount        int64      `json:"login_count"`
	PasswordChangedAt *time.Time `json:"-"`
	PasswordHistory   []string   `json:"-"`
	IsDefaultPassword bool       `json:"is_default_password"`
	ResetTokenHash    *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// IsLocked reports whether the account is under an active lockout window.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// PushPasswordHistory records the current hash as a previous password,
// evicting the oldest entry beyond PasswordHistoryLimit. Call before
// assigning the new hash.
func (a *Account) PushPasswordHistory() {
	if a.PasswordHash == "" {
		return
	}
	history := append([]string{a.PasswordHash}, a.PasswordHistory...)
	if len(history) > PasswordHistoryLimit {
		history = history[:PasswordHistoryLimit]
	}
	a.PasswordHistory = history
}

// AccountSummary is the client-facing projection of an account returned
// from login and exchange responses.
type AccountSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Role      string  `json:"role"`
	TenantID  *string `json:"tenant_id,omitempty"`
}

// Summary builds the client-facing projection.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		AvatarURL: a.AvatarURL,
		Role:      a.Role,
		TenantID:  a.TenantID,
	}
}
