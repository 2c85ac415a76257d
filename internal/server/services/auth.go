package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/server/auth"
	"github.com/dmitrijs2005/audiokeeper/internal/server/config"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// IdentityProvider is the external login backend (Yandex ID).
type IdentityProvider interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*models.ExternalProfile, error)
}

// AuthService provides authentication-related operations:
//   - Register / Login: local accounts, tokens on success
//   - ExternalLoginStart / ExternalLoginCallback: authorization-code login
//   - RefreshToken: a new pair from a valid refresh token
//   - AuthenticateRequest: resolve the account behind an access token
//
// Refresh tokens rotate: every refresh returns a new one. Nothing is
// revoked, so earlier tokens stay valid until they expire.
type AuthService struct {
	users                        *UserService
	hasher                       *cryptox.PasswordHasher
	tokens                       *auth.TokenCodec
	idp                          IdentityProvider
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger
}

func NewAuthService(users *UserService, hasher *cryptox.PasswordHasher, tokens *auth.TokenCodec,
	idp IdentityProvider, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		users:                        users,
		hasher:                       hasher,
		tokens:                       tokens,
		idp:                          idp,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		logger:                       logger,
	}
}

// Register creates a local account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*TokenPair, error) {
	info, err := s.users.CreateLocal(ctx, email, name, password)
	if err != nil {
		return nil, err
	}
	return s.issuePair(info.ID)
}

// Login checks email and password. An unknown email, an account without a
// password, a wrong password and a deactivated account all yield the same
// common.ErrorUnauthenticated.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := s.users.FindByEmailWithPassword(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.HasPassword() {
		s.hasher.VerifyDecoy(password)
		s.logger.Debug(ctx, "login rejected")
		return nil, common.ErrorUnauthenticated
	}
	if !s.hasher.Verify(password, *u.PasswordHash) || !u.IsActive {
		s.logger.Debug(ctx, "login rejected")
		return nil, common.ErrorUnauthenticated
	}
	return s.issuePair(u.ID)
}

// ExternalLoginStart returns the provider URL the client is redirected to.
func (s *AuthService) ExternalLoginStart() string {
	return s.idp.AuthorizationURL()
}

// ExternalLoginCallback completes the authorization-code flow, creating the
// account on first login. Provider failures leave no account behind.
func (s *AuthService) ExternalLoginCallback(ctx context.Context, code string) (*TokenPair, error) {
	profile, err := s.externalProfile(ctx, code)
	if err != nil {
		return nil, err
	}

	info, err := s.users.CreateFromExternal(ctx, profile.Email, profile.Name, profile.ExternalID)
	if err != nil {
		return nil, err
	}
	if !info.IsActive {
		return nil, common.ErrorUnauthenticated
	}
	return s.issuePair(info.ID)
}

// LinkExternalAccount attaches the provider identity behind code to the
// account userID.
func (s *AuthService) LinkExternalAccount(ctx context.Context, userID, code string) (*models.UserInfo, error) {
	profile, err := s.externalProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.users.LinkExternalID(ctx, userID, profile.ExternalID)
}

func (s *AuthService) externalProfile(ctx context.Context, code string) (*models.ExternalProfile, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", common.ErrorBadRequest)
	}

	token, err := s.idp.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn(ctx, "code exchange failed", "error", err)
		return nil, err
	}

	profile, err := s.idp.FetchProfile(ctx, token)
	if err != nil {
		s.logger.Warn(ctx, "profile fetch failed", "error", err)
		return nil, err
	}
	return profile, nil
}

// RefreshToken exchanges a refresh token for a new pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	info, err := s.activeAccount(ctx, refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}
	return s.issuePair(info.ID)
}

// AuthenticateRequest resolves the account behind an access token.
func (s *AuthService) AuthenticateRequest(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	return s.activeAccount(ctx, accessToken, auth.KindAccess)
}

// CurrentUser is AuthenticateRequest under the name used by account pages.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	return s.AuthenticateRequest(ctx, accessToken)
}

func (s *AuthService) activeAccount(ctx context.Context, token string, kind auth.Kind) (*models.UserInfo, error) {
	userID, err := s.tokens.Verify(token, kind)
	if err != nil {
		return nil, err
	}

	info, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if info == nil || !info.IsActive {
		return nil, common.ErrorUnauthenticated
	}
	return info, nil
}

func (s *AuthService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.tokens.Issue(userID, auth.KindAccess, s.accessTokenValidityDuration)
	if err != nil {
		return nil, errors.Join(common.ErrorInternal, err)
	}
	refresh, err := s.tokens.Issue(userID, auth.KindRefresh, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, errors.Join(common.ErrorInternal, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
