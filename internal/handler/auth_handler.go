// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/ambaria/internal/auth"
	"github.com/hitoshi/ambaria/internal/metrics"
	"github.com/hitoshi/ambaria/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分

	// frontendCallbackPath はログイン後にトークンを受け取るフロントエンドのパス。
	frontendCallbackPath = "/auth-callback"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, mc metrics.MetricsCollector) *AuthHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: mc,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	ProfilePicture string    `json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
}

// loginResponse はトークン発行結果のAPIレスポンス。
type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setStateCookie(w, state, oauthStateMaxAge)

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		h.metrics.RecordLogin(metrics.LoginRejected)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid state parameter"))
		return
	}

	// stateクッキーを削除
	h.setStateCookie(w, "", -1)

	// 2. ユーザーが同意を拒否した場合
	if providerErr := query.Get("error"); providerErr != "" {
		h.metrics.RecordLogin(metrics.LoginRejected)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAuthCodeRejectedError(providerErr))
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleCallback(r.Context(), query.Get("code"))
	if err != nil {
		h.metrics.RecordLogin(loginResult(err))
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordLogin(metrics.LoginSuccess)

	// 4. トークンを付けてフロントエンドにリダイレクト
	if h.config.FrontendURL == "" {
		writeJSON(w, http.StatusOK, toLoginResponse(result))
		return
	}
	target := h.config.FrontendURL + frontendCallbackPath + "?token=" + url.QueryEscape(result.Token.Token)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Logout はログアウトを受け付ける。
// トークンはサーバー側で保持しないため、クライアントが破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	slog.Info("user logged out", slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// loginResult はログイン失敗をメトリクスの結果ラベルに分類する。
func loginResult(err error) string {
	switch {
	case errors.Is(err, model.ErrAuthCodeRejected):
		return metrics.LoginRejected
	case errors.Is(err, model.ErrUpstreamAuth):
		return metrics.LoginUpstream
	case errors.Is(err, model.ErrEmailConflict):
		return metrics.LoginConflict
	default:
		return metrics.LoginError
	}
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}
}

func toLoginResponse(result *auth.LoginResult) loginResponse {
	return loginResponse{
		Token:     result.Token.Token,
		ExpiresAt: result.Token.ExpiresAt,
		User:      toUserResponse(result.User),
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
