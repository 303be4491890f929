package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/ambaria/internal/auth"
	"github.com/hitoshi/ambaria/internal/comment"
	"github.com/hitoshi/ambaria/internal/config"
	"github.com/hitoshi/ambaria/internal/database"
	"github.com/hitoshi/ambaria/internal/handler"
	"github.com/hitoshi/ambaria/internal/logger"
	"github.com/hitoshi/ambaria/internal/media"
	"github.com/hitoshi/ambaria/internal/metrics"
	"github.com/hitoshi/ambaria/internal/middleware"
	"github.com/hitoshi/ambaria/internal/podcast"
	"github.com/hitoshi/ambaria/internal/repository"
	"github.com/hitoshi/ambaria/internal/security"
	"github.com/hitoshi/ambaria/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	dbConnectTimeout = 5 * time.Second
	shutdownTimeout  = 30 * time.Second
	mediaPathPrefix  = "/media"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("media_backend", cfg.MediaBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type Server struct {
	Handler http.Handler

	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドのgoroutineを停止する。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// NewServer は全依存関係をワイヤリングしたServerを構築する。
// dbへの接続確認は行わない。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*Server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	podcastRepo := repository.NewPostgresPodcastRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)

	// 2. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 3. メトリクスの初期化
	collector := metrics.NewCollector(reg)

	// 4. 認証まわりの初期化
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Timeout:      cfg.OAuthTimeout,
		HTTPClient:   urlGuard.NewOutboundClient(cfg.OAuthTimeout),
	})
	userService := user.NewService(userRepo, urlGuard, user.Config{
		EmailProviderAuthoritative: cfg.EmailProviderAuthoritative,
	})
	authService := auth.NewService(oauthProvider, userService, tokens, userRepo, auth.ServiceConfig{
		CallbackURL: cfg.GoogleRedirectURL,
	})

	// 5. メディアストアの初期化
	store, mediaHandler, err := newMediaStore(cfg)
	if err != nil {
		return nil, err
	}

	// 6. ドメインサービスの初期化
	podcastService := podcast.NewService(podcastRepo, store, sanitizer, collector)
	commentService := comment.NewService(commentRepo, podcastRepo, collector, cfg.MaxCommentLength)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		HSTS:              cfg.CookieSecure,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		PodcastService: podcastService,
		CommentService: commentService,
		MaxUploadBytes: cfg.MaxUploadBytes,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		MediaHandler:   mediaHandler,
	})

	return &Server{Handler: router, rateLimiter: rateLimiter}, nil
}

// newMediaStore は設定に応じたメディアストアを生成する。
// ローカル保存の場合は配信用ハンドラーも返す。
func newMediaStore(cfg *config.Config) (media.Store, http.Handler, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendSupabase:
		store := media.NewSupabaseStore(media.SupabaseConfig{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey,
			Bucket: cfg.SupabaseBucket,
		})
		return store, nil, nil
	default:
		store, err := media.NewLocalStore(cfg.UploadDir, cfg.BaseURL+mediaPathPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize local media store: %w", err)
		}
		return store, store.Handler(), nil
	}
}

// newRegistry はプロセス・Goランタイムのコレクターを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := NewServer(cfg, db, newRegistry())
	if err != nil {
		return err
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	// アップロードを受け付けるため書き込みタイムアウトは長めに取る
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
