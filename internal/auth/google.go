package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

func (c GoogleConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

func (c GoogleConfig) oauth() *oauth2.Config {
	ep := c.Endpoint
	if ep.AuthURL == "" {
		ep = endpoints.Google
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     ep,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func (c GoogleConfig) userInfoURL() string {
	if c.UserInfoURL != "" {
		return c.UserInfoURL
	}
	return defaultGoogleUserInfoURL
}

type googleProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func fetchGoogleProfile(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, url string) (googleProfile, error) {
	client := cfg.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return googleProfile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return googleProfile{}, fmt.Errorf("fetch google profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return googleProfile{}, fmt.Errorf("fetch google profile: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var p googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return googleProfile{}, fmt.Errorf("decode google profile: %w", err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return googleProfile{}, fmt.Errorf("google profile has no email")
	}
	return p, nil
}
