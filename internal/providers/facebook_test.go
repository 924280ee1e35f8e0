package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stunity/identity/internal/models"
)

func newFacebookTestServer(t *testing.T, debugResponse, meResponse any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/debug_token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(debugResponse)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(meResponse)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type fbDebugData struct {
	AppID   string `json:"app_id"`
	UserID  string `json:"user_id"`
	IsValid bool   `json:"is_valid"`
}

type fbDebugResponse struct {
	Data fbDebugData `json:"data"`
}

func TestFacebookVerifier_Verify(t *testing.T) {
	server := newFacebookTestServer(t,
		fbDebugResponse{Data: fbDebugData{AppID: "app-1", UserID: "fb-user-1", IsValid: true}},
		map[string]any{
			"id":    "fb-user-1",
			"name":  "Casey Student",
			"email": "casey@example.edu",
			"picture": map[string]any{
				"data": map[string]any{"url": "https://example.com/avatar.jpg"},
			},
		},
	)

	v := NewFacebookVerifier("app-1", "app-secret")
	v.graphURL = server.URL

	profile, err := v.Verify(context.Background(), Credential{AccessToken: "user-token"})
	require.NoError(t, err)

	assert.Equal(t, Facebook, profile.Provider)
	assert.Equal(t, "fb-user-1", profile.ProviderUserID)
	assert.Equal(t, "casey@example.edu", profile.Email)
	assert.Equal(t, "Casey Student", profile.DisplayName)
	assert.Equal(t, "https://example.com/avatar.jpg", profile.AvatarURL)

	// The profile response is carried along verbatim for the link record.
	require.NotEmpty(t, profile.RawProfile)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(profile.RawProfile, &raw))
	assert.Equal(t, "fb-user-1", raw["id"])
}

func TestFacebookVerifier_Verify_TokenForOtherApp(t *testing.T) {
	server := newFacebookTestServer(t,
		fbDebugResponse{Data: fbDebugData{AppID: "some-other-app", UserID: "fb-user-1", IsValid: true}},
		map[string]any{"id": "fb-user-1"},
	)

	v := NewFacebookVerifier("app-1", "app-secret")
	v.graphURL = server.URL

	_, err := v.Verify(context.Background(), Credential{AccessToken: "user-token"})
	assert.ErrorIs(t, err, models.ErrProviderVerification)
}

func TestFacebookVerifier_Verify_InvalidToken(t *testing.T) {
	server := newFacebookTestServer(t,
		fbDebugResponse{Data: fbDebugData{AppID: "app-1", IsValid: false}},
		map[string]any{},
	)

	v := NewFacebookVerifier("app-1", "app-secret")
	v.graphURL = server.URL

	_, err := v.Verify(context.Background(), Credential{AccessToken: "user-token"})
	assert.ErrorIs(t, err, models.ErrProviderVerification)
}

func TestFacebookVerifier_Verify_SubjectMismatch(t *testing.T) {
	server := newFacebookTestServer(t,
		fbDebugResponse{Data: fbDebugData{AppID: "app-1", UserID: "fb-user-1", IsValid: true}},
		map[string]any{"id": "fb-user-2"},
	)

	v := NewFacebookVerifier("app-1", "app-secret")
	v.graphURL = server.URL

	_, err := v.Verify(context.Background(), Credential{AccessToken: "user-token"})
	assert.ErrorIs(t, err, models.ErrProviderVerification)
}

func TestFacebookVerifier_Verify_MissingToken(t *testing.T) {
	v := NewFacebookVerifier("app-1", "app-secret")

	_, err := v.Verify(context.Background(), Credential{})
	assert.ErrorIs(t, err, models.ErrProviderVerification)
}

func TestKnown(t *testing.T) {
	for _, p := range []Provider{Google, Apple, Facebook, LinkedIn, GoogleWorkspace, AzureAD} {
		assert.True(t, Known(p))
	}
	assert.False(t, Known(Provider("GITHUB")))
	assert.False(t, Known(Provider("")))
}
