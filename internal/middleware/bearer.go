// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ambaria/internal/model"
)

// fallbackTokenHeader はAuthorizationヘッダーを送れないクライアント向けの代替ヘッダー。
const fallbackTokenHeader = "X-Auth-Token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はセッショントークンを検証してユーザーIDを返す。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// トークンがない、または無効な場合はハンドラーを実行せずに401を返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. リクエストからトークンを取得
			token := TokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 2. トークンを検証
			userID, err := verifier.Verify(token)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Error("failed to verify token", slog.String("error", err.Error()))
					apiErr = model.NewInvalidCredentialError()
				}
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			annotateUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// TokenFromRequest はAuthorizationヘッダー、なければX-Auth-Tokenヘッダーからトークンを取り出す。
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get(fallbackTokenHeader))
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
