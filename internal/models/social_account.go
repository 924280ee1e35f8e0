package models

import (
	"encoding/json"
	"time"
)

// SocialAccount links an external identity to a platform account. The pair
// (provider, provider_user_id) is unique across the system.
type SocialAccount struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	// RawProfile is the provider's profile response as received at link time.
	RawProfile json.RawMessage `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}
