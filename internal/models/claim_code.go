package models

import "time"

// ClaimCode is a pre-provisioned code that attaches a federated sign-up to a
// tenant with a given role. Codes are single-use.
type ClaimCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	TenantID  string     `json:"tenant_id"`
	Role      string     `json:"role"`
	UsedBy    *string    `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
