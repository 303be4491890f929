package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ambaria/internal/metrics"
	"github.com/hitoshi/ambaria/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	HSTS              bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ポッドキャスト・コメント
	PodcastService PodcastServiceInterface
	CommentService CommentServiceInterface
	MaxUploadBytes int64

	// 運用
	HealthChecker  Pinger
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	MediaHandler   http.Handler // nilの場合は/mediaを公開しない（外部ストレージ利用時）
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  → [保護ルートのみ] BearerAuth → RateLimit(General) → [アップロードのみ] RateLimit(Upload)
//
// 公開ルートのレート制限はクライアントIPで区別する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	// CORS はチェーンの外側に置き、認証エラーにもヘッダーを付与する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, mc)
	podcastHandler := NewPodcastHandler(deps.PodcastService, deps.MaxUploadBytes)
	commentHandler := NewCommentHandler(deps.CommentService)

	requireAuth := middleware.NewBearerAuthMiddleware(deps.TokenVerifier)
	general := deps.RateLimiter.GeneralMiddleware()
	upload := deps.RateLimiter.UploadMiddleware()

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.MediaHandler != nil {
		r.Handle("/media/*", http.StripPrefix("/media", deps.MediaHandler))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(general)

		// OAuthフロー
		r.Get("/auth/google/login", authHandler.Login)
		r.Get("/auth/google/callback", authHandler.Callback)

		r.Get("/api/podcasts", podcastHandler.List)
		r.Get("/api/podcasts/{id}", podcastHandler.Get)
		r.Get("/api/podcasts/{id}/comments", commentHandler.List)
		r.Get("/api/comments/{id}", commentHandler.Get)
		r.Get("/api/categories", podcastHandler.ListCategories)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(general)

		r.Get("/auth/me", authHandler.Me)
		r.Get("/profile", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		// アップロードを伴う操作にはアップロード専用レート制限を追加
		r.With(upload).Post("/api/podcasts", podcastHandler.Create)
		r.Get("/api/podcasts/mine", podcastHandler.ListMine)
		r.With(upload).Patch("/api/podcasts/{id}", podcastHandler.Update)
		r.With(upload).Put("/api/podcasts/{id}", podcastHandler.Update)
		r.Delete("/api/podcasts/{id}", podcastHandler.Delete)
		r.Post("/api/podcasts/{id}/comments", commentHandler.Add)
		r.Delete("/api/comments/{id}", commentHandler.Delete)
	})

	return r
}
