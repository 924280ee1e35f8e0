package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stunity/identity/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"

// LinkedInVerifier exchanges a LinkedIn authorization code and reads the
// OpenID userinfo endpoint.
type LinkedInVerifier struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewLinkedInVerifier(clientID, clientSecret, redirectURL string) *LinkedInVerifier {
	return &LinkedInVerifier{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     linkedin.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		userInfoURL: linkedinUserInfoURL,
	}
}

func (v *LinkedInVerifier) Provider() Provider { return LinkedIn }

func (v *LinkedInVerifier) Verify(ctx context.Context, cred Credential) (*Profile, error) {
	if cred.AuthorizationCode == "" {
		return nil, fmt.Errorf("%w: missing linkedin authorization code", models.ErrProviderVerification)
	}

	config := v.config
	if cred.RedirectURI != "" {
		clone := *v.config
		clone.RedirectURL = cred.RedirectURI
		config = &clone
	}

	token, err := config.Exchange(ctx, cred.AuthorizationCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: linkedin userinfo returned %d", models.ErrProviderVerification, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: linkedin userinfo missing subject", models.ErrProviderVerification)
	}

	return &Profile{
		Provider:       LinkedIn,
		ProviderUserID: info.Sub,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		DisplayName:    info.Name,
		AvatarURL:      info.Picture,
		RawProfile:     body,
	}, nil
}
