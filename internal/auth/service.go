// Package auth はOAuthログインフロー、セッショントークンの発行と検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ambaria/internal/model"
	"github.com/hitoshi/ambaria/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(callbackURL, state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code, callbackURL string) (*model.ProviderProfile, error)
}

// Reconciler はプロバイダーのプロフィールからローカルユーザーを作成・更新する。
type Reconciler interface {
	Reconcile(ctx context.Context, profile model.ProviderProfile) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	CallbackURL string // プロバイダーに登録したコールバックURL
}

// LoginResult はログイン成功時の結果を表す。
type LoginResult struct {
	User  *model.User
	Token *IssuedToken
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth      OAuthProvider
	reconciler Reconciler
	tokens     *TokenIssuer
	userRepo   repository.UserRepository
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	reconciler Reconciler,
	tokens *TokenIssuer,
	userRepo repository.UserRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:      oauth,
		reconciler: reconciler,
		tokens:     tokens,
		userRepo:   userRepo,
		config:     config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(s.config.CallbackURL, state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// プロバイダー呼び出しはDBトランザクションの外で行う。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	// 1. 認可コードをプロフィールに交換
	profile, err := s.oauth.ExchangeCode(ctx, code, s.config.CallbackURL)
	if err != nil {
		return nil, err
	}

	// 2. ローカルユーザーを作成または更新
	user, err := s.reconciler.Reconcile(ctx, *profile)
	if err != nil {
		return nil, err
	}

	// 3. セッショントークンを発行
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return &LoginResult{User: user, Token: token}, nil
}

// Authenticate はトークンを検証し、ユーザーIDを返す。
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Verify(token)
}

// CurrentUser はユーザーIDから現在のユーザーを取得する。
// トークン発行後にユーザーが存在しなくなった場合はトークンを無効として扱う。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialError()
	}
	return user, nil
}
