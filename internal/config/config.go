package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MediaBackend はメディアファイルの保存先の種類。
const (
	MediaBackendLocal    = "local"
	MediaBackendSupabase = "supabase"
)

// minJWTSecretLength はHS256署名鍵の最小バイト数。
const minJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,notEmpty"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,notEmpty"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL,notEmpty"`
	OAuthTimeout       time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`

	// Token
	JWTSecret   string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	TokenIssuer string        `env:"TOKEN_ISSUER" envDefault:"ambaria"`

	// User
	// trueの場合、ログインのたびにIDプロバイダーのメールアドレスで上書きする。
	EmailProviderAuthoritative bool `env:"USER_EMAIL_PROVIDER_AUTHORITATIVE" envDefault:"false"`

	// Media
	MediaBackend   string `env:"MEDIA_BACKEND" envDefault:"local"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	SupabaseURL    string `env:"SUPABASE_URL"`
	SupabaseKey    string `env:"SUPABASE_KEY"`
	SupabaseBucket string `env:"SUPABASE_BUCKET" envDefault:"uploads"`

	// Comment
	MaxCommentLength int `env:"MAX_COMMENT_LENGTH" envDefault:"2000"`

	// Rate Limit
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitUpload  int `env:"RATE_LIMIT_UPLOAD" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL,notEmpty"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Cookie
	CookieSecure bool   `env:"-"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// envFile は起動時に読み込む.envファイルのパス。
var envFile = ".env"

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 既に設定されている環境変数は.envの値で上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive: %s", c.TokenTTL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive: %d", c.MaxUploadBytes)
	}
	if c.RateLimitGeneral <= 0 {
		return fmt.Errorf("RATE_LIMIT_GENERAL must be positive: %d", c.RateLimitGeneral)
	}
	if c.RateLimitUpload <= 0 {
		return fmt.Errorf("RATE_LIMIT_UPLOAD must be positive: %d", c.RateLimitUpload)
	}

	switch c.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendSupabase:
		var missing []string
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("required environment variables are not set for supabase media backend: %v", missing)
		}
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND: %q (want %q or %q)", c.MediaBackend, MediaBackendLocal, MediaBackendSupabase)
	}

	return nil
}
