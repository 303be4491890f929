package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ambaria/internal/model"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	defaultOAuthTimeout = 10 * time.Second

	// maxUserInfoBytes はユーザー情報レスポンスの読み込み上限。
	maxUserInfoBytes = 1 << 20
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string

	// Timeout はトークン交換とユーザー情報取得のそれぞれに適用される。
	Timeout time.Duration

	// HTTPClient はプロバイダーへの通信に使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	client      *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultOAuthTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: config.UserInfoURL,
		timeout:     config.Timeout,
		client:      config.HTTPClient,
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// オフラインアクセスと同意画面の再表示を要求する。
func (p *GoogleOAuthProvider) GetLoginURL(callbackURL, state string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("redirect_uri", callbackURL),
	)
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
// v1/v2はid、v3(OIDC)はsubでユーザーIDを返す。
type googleUserInfo struct {
	ID      string `json:"id"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (u googleUserInfo) externalID() string {
	if u.Sub != "" {
		return u.Sub
	}
	return u.ID
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 2回の外部呼び出しはそれぞれタイムアウト付きで実行し、再試行はしない。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code, callbackURL string) (*model.ProviderProfile, error) {
	if code == "" {
		return nil, model.NewAuthCodeRejectedError("authorization code is missing")
	}

	// 1. 認可コードをアクセストークンに交換
	token, err := p.exchangeToken(ctx, code, callbackURL)
	if err != nil {
		return nil, err
	}

	// 2. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &model.ProviderProfile{
		ExternalID: info.externalID(),
		Email:      info.Email,
		Name:       info.Name,
		PictureURL: info.Picture,
	}, nil
}

func (p *GoogleOAuthProvider) exchangeToken(ctx context.Context, code, callbackURL string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", callbackURL))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				slog.Warn("authorization code rejected by provider",
					slog.Int("status", status),
					slog.String("error_code", retrieveErr.ErrorCode),
				)
				return nil, model.NewAuthCodeRejectedError(retrieveErr.ErrorCode)
			}
		}
		slog.Error("token exchange failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamAuthError("token exchange failed")
	}
	if token.AccessToken == "" {
		return nil, model.NewUpstreamAuthError("empty access token in response")
	}
	return token, nil
}

func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Error("user info request failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamAuthError("user info request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, model.NewUpstreamAuthError("failed to read user info response")
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("user info fetch failed", slog.Int("status", resp.StatusCode))
		return nil, model.NewUpstreamAuthError(fmt.Sprintf("user info returned status %d", resp.StatusCode))
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, model.NewUpstreamAuthError("malformed user info response")
	}
	if info.externalID() == "" {
		return nil, model.NewUpstreamAuthError("user info response has no user id")
	}
	if info.Email == "" {
		return nil, model.NewUpstreamAuthError("user info response has no email")
	}

	return &info, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
