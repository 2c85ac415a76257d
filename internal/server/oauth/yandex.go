// Package oauth talks to the external identity provider (Yandex ID): the
// authorization-code exchange and the profile lookup.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	"golang.org/x/oauth2"
)

// maxProfileBytes bounds the profile response body.
const maxProfileBytes = 1 << 20

// YandexConfig carries the client registration and provider endpoints.
type YandexConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
}

// YandexClient implements the authorization-code flow against Yandex ID.
// Calls are never retried.
type YandexClient struct {
	oauth      *oauth2.Config
	profileURL string
	httpClient *http.Client
}

type Option func(*YandexClient)

// WithHTTPClient sets the client used for both the token and profile calls.
func WithHTTPClient(c *http.Client) Option {
	return func(y *YandexClient) { y.httpClient = c }
}

func NewYandexClient(cfg YandexConfig, opts ...Option) *YandexClient {
	y := &YandexClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: cfg.ProfileURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// AuthorizationURL is where the user is sent to grant access.
func (y *YandexClient) AuthorizationURL() string {
	return y.oauth.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for an access token.
func (y *YandexClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, y.httpClient)

	tok, err := y.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: exchange code: %v", common.ErrorUpstream, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", common.ErrorUpstream)
	}
	return tok.AccessToken, nil
}

type yandexProfile struct {
	ID           flexString `json:"id"`
	Login        string     `json:"login"`
	DefaultEmail string     `json:"default_email"`
	Emails       []string   `json:"emails"`
	RealName     string     `json:"real_name"`
	DisplayName  string     `json:"display_name"`
}

// FetchProfile reads the profile of the token's owner. A profile without
// an email is common.ErrorIncompleteProfile.
func (y *YandexClient) FetchProfile(ctx context.Context, accessToken string) (*models.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build profile request: %v", common.ErrorUpstream, err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", common.ErrorUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", common.ErrorUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: profile status %d", common.ErrorUpstream, resp.StatusCode)
	}

	var p yandexProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", common.ErrorUpstream, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", common.ErrorUpstream)
	}

	email := p.DefaultEmail
	if email == "" && len(p.Emails) > 0 {
		email = p.Emails[0]
	}
	if strings.TrimSpace(email) == "" {
		return nil, common.ErrorIncompleteProfile
	}

	name := p.RealName
	if name == "" {
		name = p.DisplayName
	}
	if name == "" {
		name = p.Login
	}

	return &models.ExternalProfile{
		ExternalID: string(p.ID),
		Email:      email,
		Name:       name,
	}, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
