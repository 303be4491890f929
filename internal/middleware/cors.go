package middleware

import (
	"net/http"
	"strings"
)

var (
	corsAllowedMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	// ベアラートークンの代替ヘッダーもブラウザから送信できるようにする
	corsAllowedHeaders = strings.Join([]string{"Content-Type", "Authorization", fallbackTokenHeader}, ", ")
)

// NewCORSMiddleware は単一のフロントエンドオリジンを許可するCORSミドルウェアを返す。
// credentialsを許可するため、オリジンはワイルドカードではなく設定値をそのまま返す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			// 既存のVaryは上書きしない
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
