package models

import "time"

// Tenant is a school (or district) that accounts belong to.
type Tenant struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Active             bool       `json:"active"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SubscriptionExpired reports whether the tenant's subscription has lapsed.
// A nil expiry means the subscription does not expire.
func (t *Tenant) SubscriptionExpired(now time.Time) bool {
	return t.SubscriptionExpiry != nil && t.SubscriptionExpiry.Before(now)
}

// TenantSummary is the projection embedded in access tokens and login
// responses.
type TenantSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Summary builds the token/response projection.
func (t *Tenant) Summary() *TenantSummary {
	return &TenantSummary{
		ID:     t.ID,
		Name:   t.Name,
		Active: t.Active,
	}
}
