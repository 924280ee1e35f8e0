package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/stunity/identity/internal/models"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookVerifier validates Facebook access tokens via the Graph API. The
// token is first introspected with debug_token to confirm it was issued for
// our app, then the profile is fetched.
type FacebookVerifier struct {
	appID     string
	appSecret string
	graphURL  string
}

func NewFacebookVerifier(appID, appSecret string) *FacebookVerifier {
	return &FacebookVerifier{
		appID:     appID,
		appSecret: appSecret,
		graphURL:  facebookGraphURL,
	}
}

func (v *FacebookVerifier) Provider() Provider { return Facebook }

func (v *FacebookVerifier) Verify(ctx context.Context, cred Credential) (*Profile, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing facebook access token", models.ErrProviderVerification)
	}

	userID, err := v.introspect(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := v.fetchProfile(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	if profile.ProviderUserID != userID {
		return nil, fmt.Errorf("%w: token subject mismatch", models.ErrProviderVerification)
	}

	return profile, nil
}

func (v *FacebookVerifier) introspect(ctx context.Context, accessToken string) (string, error) {
	query := url.Values{}
	query.Set("input_token", accessToken)
	query.Set("access_token", v.appID+"|"+v.appSecret)

	var result struct {
		Data struct {
			AppID   string `json:"app_id"`
			UserID  string `json:"user_id"`
			IsValid bool   `json:"is_valid"`
		} `json:"data"`
	}
	if _, err := v.getJSON(ctx, v.graphURL+"/debug_token?"+query.Encode(), &result); err != nil {
		return "", err
	}

	if !result.Data.IsValid || result.Data.AppID != v.appID || result.Data.UserID == "" {
		return "", fmt.Errorf("%w: facebook token is not valid for this app", models.ErrProviderVerification)
	}
	return result.Data.UserID, nil
}

func (v *FacebookVerifier) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	query := url.Values{}
	query.Set("fields", "id,name,email,picture")
	query.Set("access_token", accessToken)

	var result struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	body, err := v.getJSON(ctx, v.graphURL+"/me?"+query.Encode(), &result)
	if err != nil {
		return nil, err
	}

	return &Profile{
		Provider:       Facebook,
		ProviderUserID: result.ID,
		Email:          result.Email,
		EmailVerified:  result.Email != "",
		DisplayName:    result.Name,
		AvatarURL:      result.Picture.Data.URL,
		RawProfile:     body,
	}, nil
}

func (v *FacebookVerifier) getJSON(ctx context.Context, rawURL string, dest any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: facebook graph returned %d", models.ErrProviderVerification, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}
	return body, nil
}
