package models

import "time"

// BackupCodeCount is the number of single-use recovery codes issued when
// two-factor authentication is enabled or codes are regenerated.
const BackupCodeCount = 10

// BackupCode is a bcrypt-hashed single-use recovery code.
type BackupCode struct {
	Hash   string     `json:"hash"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// TwoFactorSecret holds an account's TOTP enrollment. The shared secret is
// encrypted at rest with AES-256-GCM; Nonce is the GCM nonce used for that
// encryption.
type TwoFactorSecret struct {
	AccountID       string       `json:"account_id"`
	SecretEncrypted []byte       `json:"-"`
	Nonce           []byte       `json:"-"`
	Enabled         bool         `json:"enabled"`
	VerifiedAt      *time.Time   `json:"verified_at,omitempty"`
	BackupCodes     []BackupCode `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// RemainingBackupCodes counts codes that have not been consumed.
func (s *TwoFactorSecret) RemainingBackupCodes() int {
	remaining := 0
	for _, code := range s.BackupCodes {
		if code.UsedAt == nil {
			remaining++
		}
	}
	return remaining
}
