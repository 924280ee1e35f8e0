package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/pkg/httpx"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AccountContextKey is the key for storing account claims in context
	AccountContextKey contextKey = "account"
)

// AccountFetcher loads accounts for middleware state checks
type AccountFetcher interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// AuthMiddleware validates bearer access tokens and injects claims into
// context. When accounts is non-nil the account is loaded to enforce the
// active flag and reject tokens issued before the last password change.
func AuthMiddleware(tm *TokenManager, accounts AccountFetcher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httpx.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httpx.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1], models.TokenTypeAccess)
			if err != nil {
				httpx.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if accounts != nil {
				account, err := accounts.GetByID(r.Context(), claims.AccountID)
				if err != nil {
					if errors.Is(err, models.ErrNotFound) {
						httpx.WriteUnauthorized(w, "account not found")
						return
					}
					httpx.WriteInternalError(w, "unable to verify account")
					return
				}

				if !account.Active {
					httpx.WriteUnauthorized(w, "account is deactivated")
					return
				}

				// Tokens minted under a previous password are dead
				if account.PasswordChangedAt != nil && claims.IssuedAt != nil &&
					claims.IssuedAt.Time.Before(*account.PasswordChangedAt) {
					httpx.WriteUnauthorized(w, "invalid or expired token")
					return
				}
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates a middleware that enforces role-based access control.
// The role is checked against the database, not the token, so demotions take
// effect immediately.
func RequireRole(accounts AccountFetcher, roles ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r)
			if claims == nil {
				httpx.WriteUnauthorized(w, "unauthorized")
				return
			}

			account, err := accounts.GetByID(r.Context(), claims.AccountID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					httpx.WriteUnauthorized(w, "account not found")
					return
				}
				httpx.WriteInternalError(w, "unable to verify account")
				return
			}

			if !allowed[account.Role] {
				httpx.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext retrieves validated token claims from the request
// context. Returns nil when the request did not pass AuthMiddleware.
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(AccountContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
